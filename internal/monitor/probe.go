package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"kbdash/internal/models"
)

func (m *Monitor) check(parent context.Context) (res models.ProbeResult) {
	ctx, cancel := context.WithTimeout(parent, m.probeTimeout)
	defer cancel()

	start := time.Now()
	res.Target = m.target
	defer func() {
		res.LatencyMs = time.Since(start).Milliseconds()
		res.CheckedAt = time.Now().UTC()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.target, nil)
	if err != nil {
		res.Cause = models.CauseNetwork
		res.Error = err.Error()
		return res
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	response, err := m.client.Do(req)
	if err != nil {
		res.Cause = models.CauseNetwork
		res.Error = err.Error()
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			res.Cause = models.CauseTimeout
			res.Error = fmt.Sprintf("request timed out after %s", m.probeTimeout)
		}
		return res
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 64<<10))

	res.StatusCode = response.StatusCode
	res.OK = response.StatusCode >= 200 && response.StatusCode < 300
	if !res.OK {
		res.Cause = models.CauseHTTP
		res.Error = http.StatusText(response.StatusCode)
	}
	return res
}
