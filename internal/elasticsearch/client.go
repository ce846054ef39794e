package elasticsearch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog/log"

	"log-viewer-backend/config"
)

func newTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: 10 * time.Second,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
	}
}

// NewClient connects to the cluster, retrying with exponential backoff
// until the cluster answers an Info request.
func NewClient(cfg *config.Config) (*elasticsearch.Client, error) {
	if len(cfg.Elasticsearch.Addresses) == 0 {
		return nil, errors.New("elasticsearch addresses are not configured")
	}
	esCfg := elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Transport: newTransport(),
	}

	var client *elasticsearch.Client
	operation := func() error {
		var err error
		client, err = elasticsearch.NewClient(esCfg)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		res, err := client.Info(client.Info.WithContext(ctx))
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("elasticsearch Info() returned error status: %s", res.Status())
		}
		return nil
	}

	connectBackoff := backoff.NewExponentialBackOff()
	connectBackoff.InitialInterval = 2 * time.Second
	connectBackoff.MaxInterval = 15 * time.Second
	connectBackoff.MaxElapsedTime = 90 * time.Second

	log.Info().Strs("addresses", cfg.Elasticsearch.Addresses).Msg("Connecting to Elasticsearch...")
	err := backoff.RetryNotify(operation, connectBackoff, func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Elasticsearch not reachable yet")
	})
	if err != nil {
		return nil, fmt.Errorf("connect to elasticsearch: %w", err)
	}
	log.Info().Msg("Elasticsearch client initialized and connection verified")
	return client, nil
}

func NewTypedClient(cfg *config.Config) (*elasticsearch.TypedClient, error) {
	client, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create typed elasticsearch client: %w", err)
	}
	return client, nil
}
