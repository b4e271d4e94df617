package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fuel-registry/internal/geo"
	routing "fuel-registry/internal/routing/domain"
)

// DefaultMatrixBaseURL is the legacy distance matrix origin.
const DefaultMatrixBaseURL = "https://maps.googleapis.com"

const matrixPath = "/maps/api/distancematrix/json"

// Matrix queries the legacy distance matrix GET endpoint.
type Matrix struct {
	c *client
}

var _ routing.Provider = (*Matrix)(nil)

// NewMatrix constructs a legacy matrix provider.
func NewMatrix(apiKey string, opts ...Option) (*Matrix, error) {
	if apiKey == "" {
		return nil, errors.New("provider matrix: empty api key")
	}
	return &Matrix{c: newClient(DefaultMatrixBaseURL, apiKey, opts)}, nil
}

// Name implements routing.Provider.
func (m *Matrix) Name() string { return "matrix" }

type matrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []matrixElement `json:"elements"`
	} `json:"rows"`
	ErrorMessage string `json:"error_message"`
}

type matrixElement struct {
	Status   string `json:"status"`
	Distance struct {
		Value int64 `json:"value"`
	} `json:"distance"`
	Duration struct {
		Value int64 `json:"value"`
	} `json:"duration"`
}

// Distances implements routing.Provider.
func (m *Matrix) Distances(ctx context.Context, origin geo.Point, destinations []geo.Point, opts routing.Options) (routing.Batch, error) {
	n := len(destinations)
	q := url.Values{}
	q.Set("origins", formatLatLng(origin))
	dests := make([]string, n)
	for i, d := range destinations {
		dests[i] = formatLatLng(d)
	}
	q.Set("destinations", strings.Join(dests, "|"))
	q.Set("mode", opts.Mode)
	q.Set("units", opts.Units)
	q.Set("language", opts.Language)
	q.Set("key", m.c.apiKey)

	var resp matrixResponse
	status, err := m.c.doJSON(ctx, http.MethodGet, matrixPath+"?"+q.Encode(), nil, nil, &resp)
	if errors.Is(err, errMalformed) {
		return malformedBatch(n, err), nil
	}
	if err != nil {
		return routing.Batch{}, err
	}
	if status < 200 || status >= 300 {
		return failedBatch(n, status), nil
	}

	switch resp.Status {
	case "OK":
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return routing.Batch{Results: routing.Fill(n, routing.StatusRateLimited, resp.Status), HTTPStatus: http.StatusTooManyRequests}, nil
	default:
		msg := resp.Status
		if resp.ErrorMessage != "" {
			msg += ": " + resp.ErrorMessage
		}
		return routing.Batch{Results: routing.Fill(n, routing.StatusError, msg), HTTPStatus: http.StatusBadGateway}, nil
	}

	results := make([]routing.Result, n)
	var elements []matrixElement
	if len(resp.Rows) > 0 {
		elements = resp.Rows[0].Elements
	}
	for i := range results {
		if i >= len(elements) {
			results[i] = routing.Result{Status: routing.StatusError, Error: "missing upstream element"}
			continue
		}
		results[i] = matrixResult(elements[i])
	}
	return routing.Batch{Results: results, HTTPStatus: status}, nil
}

func matrixResult(e matrixElement) routing.Result {
	switch e.Status {
	case "OK":
		return routing.Result{Status: routing.StatusOK, DistanceMeters: e.Distance.Value, DurationSeconds: e.Duration.Value}
	case "ZERO_RESULTS", "NOT_FOUND":
		return routing.Result{Status: routing.StatusNoRoute}
	case "OVER_QUERY_LIMIT":
		return routing.Result{Status: routing.StatusRateLimited, Error: e.Status}
	default:
		return routing.Result{Status: routing.StatusError, Error: e.Status}
	}
}

func formatLatLng(p geo.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}
