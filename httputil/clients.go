package httputil

import (
	"log"
	"time"

	"price_crew/config"
	"resty.dev/v3"
)

const (
	defaultRetryCount       = 2
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 8 * time.Second
)

// NewScrapingClient returns a browser-like client that retries transient
// failures and goes through the configured proxy.
func NewScrapingClient(proxyCfg *config.ProxyConfig) *resty.Client {
	client := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", proxyCfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)

	if proxyCfg.URL != "" {
		client.SetProxy(proxyCfg.URL)
	}
	return client
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	switch code := r.StatusCode(); {
	case code >= 500, code == 429, code == 408:
		return true
	}
	return false
}

func retryHook(r *resty.Response, err error) {
	if err != nil {
		log.Printf("HTTP: retrying %s (attempt %d): %v", r.Request.URL, r.Request.Attempt, err)
		return
	}
	log.Printf("HTTP: retrying %s (attempt %d): status %d", r.Request.URL, r.Request.Attempt, r.StatusCode())
}
