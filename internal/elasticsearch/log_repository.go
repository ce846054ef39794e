package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/operator"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
	"github.com/rs/zerolog/log"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/dto"
	"log-viewer-backend/internal/model"
	"log-viewer-backend/internal/repository"
)

type archiveRepository struct {
	esTypedClient *elasticsearch.TypedClient
	indexPrefix   string
}

func NewArchiveRepository(cfg *config.Config, client *elasticsearch.TypedClient) repository.ArchiveRepository {
	return &archiveRepository{
		esTypedClient: client,
		indexPrefix:   cfg.Elasticsearch.LogIndex,
	}
}

func (r *archiveRepository) Search(ctx context.Context, req dto.ArchiveSearchRequest) (*dto.ArchiveSearchResponse, error) {
	searchRequest := BuildSearchRequest(req)

	res, err := r.esTypedClient.Search().
		Index(fmt.Sprintf("%s-*", r.indexPrefix)).
		Request(searchRequest).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}

	logs := make([]model.Record, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		if hit.Source_ == nil {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal(hit.Source_, &rec); err != nil {
			log.Error().Err(err).Msg("Error unmarshalling Elasticsearch hit source")
			continue
		}
		logs = append(logs, rec)
	}

	var total int64
	if res.Hits.Total != nil {
		total = res.Hits.Total.Value
	}
	log.Debug().Int64("total_hits", total).Int("returned_hits", len(logs)).Msg("Elasticsearch search successful")
	return &dto.ArchiveSearchResponse{
		Logs:       logs,
		TotalCount: total,
		Page:       req.Page,
		Size:       req.Size,
	}, nil
}

// BuildSearchRequest turns the archive filter into a bool filter query
// sorted on @timestamp.
func BuildSearchRequest(req dto.ArchiveSearchRequest) *search.Request {
	startTime := req.StartTime.UTC().Format(time.RFC3339Nano)
	endTime := req.EndTime.UTC().Format(time.RFC3339Nano)

	filters := []types.Query{{
		Range: map[string]types.RangeQuery{
			"@timestamp": types.DateRangeQuery{
				Gte: &startTime,
				Lte: &endTime,
			},
		},
	}}

	if req.Query != "" {
		filters = append(filters, types.Query{
			QueryString: &types.QueryStringQuery{
				Query:           req.Query,
				Fields:          []string{"message", "raw", "logger", "service"},
				DefaultOperator: &operator.Operator{Name: "AND"},
			},
		})
	}
	if terms := termsQuery("level.keyword", req.Levels); terms != nil {
		filters = append(filters, *terms)
	}
	if terms := termsQuery("service.keyword", req.Services); terms != nil {
		filters = append(filters, *terms)
	}

	page, size := req.Page, req.Size
	if page <= 0 {
		page = 1
	}
	from := (page - 1) * size
	order := sortorder.Desc
	if req.SortOrder == "asc" {
		order = sortorder.Asc
	}

	return &search.Request{
		Query: &types.Query{
			Bool: &types.BoolQuery{Filter: filters},
		},
		Size: &size,
		From: &from,
		Sort: []types.SortCombinations{
			types.SortOptions{
				SortOptions: map[string]types.FieldSort{
					"@timestamp": {Order: &order},
				},
			},
		},
	}
}

func termsQuery(field string, values []string) *types.Query {
	if len(values) == 0 {
		return nil
	}
	terms := make([]types.FieldValue, len(values))
	for i, v := range values {
		terms[i] = v
	}
	return &types.Query{
		Terms: &types.TermsQuery{
			TermsQuery: map[string]types.TermsQueryField{field: terms},
		},
	}
}
