package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// probeAPI polls the device endpoint and logs response times.
func probeAPI(ctx context.Context, baseURL, imei, token string, count int) {
	client := &http.Client{Timeout: 5 * time.Second}
	url := strings.TrimRight(baseURL, "/") + "/api/devices/" + imei

	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			logrus.WithError(err).Error("bad API URL")
			return
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			logrus.WithError(err).Warn("API request failed")
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		logrus.WithFields(logrus.Fields{
			"request":  fmt.Sprintf("%d/%d", i+1, count),
			"status":   resp.StatusCode,
			"duration": time.Since(start),
		}).Info(strings.TrimSpace(string(body)))
	}
}
