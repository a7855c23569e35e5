package service

import (
	"context"

	"github.com/metricdock/metricdock/internal/stripeclient"
	"github.com/metricdock/metricdock/internal/stripesync/domain"
)

// forEachPage drives cursor pagination for one entity until the API
// reports exhaustion or the page ceiling is reached. The cursor is always
// the ID of the previous page's last item. Any fetch or callback error
// aborts this entity's pagination; the stage runner catches it.
func (s *Service) forEachPage(ctx context.Context, creds stripeclient.Credentials, params stripeclient.ListParams, maxPages int, fn func(items []domain.Record) error) error {
	cursor := ""
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		params.StartingAfter = cursor

		result, err := s.client.List(ctx, creds, params)
		if err != nil {
			return err
		}

		if len(result.Items) > 0 {
			records := make([]domain.Record, 0, len(result.Items))
			for _, item := range result.Items {
				records = append(records, domain.Record(item))
			}
			if err := fn(records); err != nil {
				return err
			}
			cursor = records[len(records)-1].ID()
		}

		if !result.HasMore || len(result.Items) == 0 {
			return nil
		}
	}
	return nil
}
