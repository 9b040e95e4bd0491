package bars

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
)

const (
	databentoBaseURL = "https://hist.databento.com/v0/timeseries.get_range"
	databentoDataset = "GLBX.MDP3"
	databentoSchema  = "ohlcv-1m"
)

// DatabentoProvider fetches historical bars from the databento REST API.
// It always requests 1-minute bars and resamples locally, so one upstream
// schema serves every supported timeframe.
type DatabentoProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewDatabentoProvider builds a provider. An empty key yields an
// unavailable provider, which gates backtests onto the simulated fallback
// path (TRIALS only, behind its feature flag).
func NewDatabentoProvider(apiKey string) *DatabentoProvider {
	return &DatabentoProvider{
		apiKey:  apiKey,
		baseURL: databentoBaseURL,
		client:  &http.Client{},
	}
}

// Name identifies the provider in provenance records.
func (p *DatabentoProvider) Name() string { return "databento" }

// Available reports whether credentials are configured.
func (p *DatabentoProvider) Available() bool { return p.apiKey != "" }

// databentoBar is one row of the upstream JSON response. Prices arrive as
// fixed-point integers scaled by 1e9; ts_event is nanoseconds UTC.
type databentoBar struct {
	TsEvent int64 `json:"ts_event,string"`
	Open    int64 `json:"open,string"`
	High    int64 `json:"high,string"`
	Low     int64 `json:"low,string"`
	Close   int64 `json:"close,string"`
	Volume  int64 `json:"volume,string"`
}

const priceScale = 1e9

// FetchBars retrieves one range. The upstream answers newline-delimited
// JSON; rows are decoded streaming and resampled to the requested
// timeframe before returning.
func (p *DatabentoProvider) FetchBars(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if !p.Available() {
		return nil, errclass.New(errclass.DataProvenanceViolation, "databento provider has no API key")
	}

	q := url.Values{}
	q.Set("dataset", databentoDataset)
	q.Set("schema", databentoSchema)
	q.Set("symbols", req.Symbol+".c.0") // Lead month by calendar roll.
	q.Set("stype_in", "continuous")
	q.Set("start", req.Start.UTC().Format(time.RFC3339))
	q.Set("end", req.End.UTC().Format(time.RFC3339))
	q.Set("encoding", "json")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build databento request")
	}
	httpReq.SetBasicAuth(p.apiKey, "")
	if req.TraceID != "" {
		httpReq.Header.Set("X-Request-Id", req.TraceID)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errclass.Wrap(errclass.Transient, err, "databento request failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close databento response body")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		code := errclass.Transient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			code = errclass.CorruptData
		}
		return nil, errclass.Newf(code, "databento returned %s", resp.Status)
	}

	var minute []Bar
	dec := json.NewDecoder(resp.Body)
	for dec.More() {
		var row databentoBar
		if err := dec.Decode(&row); err != nil {
			return nil, errclass.Wrap(errclass.CorruptData, err, "could not decode databento row")
		}
		minute = append(minute, Bar{
			Time:   time.Unix(0, row.TsEvent).UTC(),
			Open:   float64(row.Open) / priceScale,
			High:   float64(row.High) / priceScale,
			Low:    float64(row.Low) / priceScale,
			Close:  float64(row.Close) / priceScale,
			Volume: float64(row.Volume),
		})
	}

	out, err := Resample(minute, req.Timeframe)
	if err != nil {
		return nil, err
	}
	return &FetchResult{
		Bars: out,
		Provenance: types.DataProvenance{
			Provider:     p.Name(),
			Dataset:      databentoDataset,
			Schema:       databentoSchema,
			RawRequestID: resp.Header.Get("X-Request-Id"),
		},
	}, nil
}

// String implements fmt.Stringer for log fields without leaking the key.
func (p *DatabentoProvider) String() string {
	return fmt.Sprintf("databento(available=%t)", p.Available())
}
