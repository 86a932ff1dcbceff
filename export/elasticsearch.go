package export

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/siteprobe/config"
	"github.com/lukemcguire/siteprobe/report"
)

// Document is the Elasticsearch representation of one outcome.
type Document struct {
	Timestamp      time.Time `json:"@timestamp"`
	RunID          string    `json:"runId"`
	SitemapURL     string    `json:"sitemapUrl"`
	URL            string    `json:"url"`
	StatusCode     int       `json:"statusCode"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	ResponseSize   int64     `json:"responseSize"`
	Attempts       int       `json:"attempts,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorCategory  string    `json:"errorCategory,omitempty"`
}

// ESExporter bulk-indexes outcomes into Elasticsearch.
type ESExporter struct {
	client  *elasticsearch.Client
	pattern string
	log     logrus.FieldLogger
}

// NewESExporter connects to the cluster and checks that it answers.
func NewESExporter(cfg config.ElasticsearchConfig, log logrus.FieldLogger) (*ESExporter, error) {
	esCfg := elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    3,
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("connect to Elasticsearch: %s", res.Status())
	}

	pattern := cfg.Index
	if pattern == "" {
		pattern = config.DefaultESIndex
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &ESExporter{client: client, pattern: pattern, log: log}, nil
}

// Export indexes every outcome of r and waits for the bulk requests to
// finish. It returns the number of indexed documents.
func (e *ESExporter) Export(ctx context.Context, r *report.Report) (uint64, error) {
	index := IndexName(e.pattern, r.StartedAt)

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     e.client,
		Index:      index,
		NumWorkers: 1,
		OnError: func(_ context.Context, err error) {
			e.log.WithError(err).Warn("Elasticsearch bulk request failed")
		},
	})
	if err != nil {
		return 0, fmt.Errorf("create bulk indexer: %w", err)
	}

	for i, o := range r.Responses {
		doc := Document{
			Timestamp:      r.StartedAt,
			RunID:          r.RunID,
			SitemapURL:     r.SitemapURL,
			URL:            o.URL,
			StatusCode:     o.Status,
			ResponseTimeMs: o.Elapsed.Milliseconds(),
			ResponseSize:   o.BodySize,
			Attempts:       o.Attempts,
			Error:          o.Error,
			ErrorCategory:  string(o.Category),
		}
		err := bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: r.RunID + "-" + strconv.Itoa(i),
			Body:       esutil.NewJSONReader(doc),
			OnFailure: func(_ context.Context, _ esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				log := e.log.WithField("url", doc.URL)
				if err != nil {
					log.WithError(err).Warn("Failed to index outcome")
					return
				}
				log.WithFields(logrus.Fields{"type": res.Error.Type, "reason": res.Error.Reason}).Warn("Failed to index outcome")
			},
		})
		if err != nil {
			_ = bi.Close(ctx)
			return 0, fmt.Errorf("queue outcome for indexing: %w", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return 0, fmt.Errorf("flush bulk indexer: %w", err)
	}

	stats := bi.Stats()
	e.log.WithFields(logrus.Fields{
		"index":   index,
		"indexed": stats.NumIndexed,
		"failed":  stats.NumFailed,
	}).Info("Exported outcomes to Elasticsearch")
	if stats.NumFailed > 0 {
		return stats.NumIndexed, fmt.Errorf("%d of %d outcomes failed to index", stats.NumFailed, stats.NumAdded)
	}
	return stats.NumIndexed, nil
}

// IndexName expands the date placeholders %{+yyyy.MM.dd}, %{+yyyy.MM} and
// %{+yyyy} in pattern using t.
func IndexName(pattern string, t time.Time) string {
	t = t.UTC()
	pattern = strings.ReplaceAll(pattern, "%{+yyyy.MM.dd}", t.Format("2006.01.02"))
	pattern = strings.ReplaceAll(pattern, "%{+yyyy.MM}", t.Format("2006.01"))
	return strings.ReplaceAll(pattern, "%{+yyyy}", t.Format("2006"))
}
