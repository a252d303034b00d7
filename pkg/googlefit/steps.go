// Package googlefit talks to the Google Fit REST API: refreshing OAuth
// credentials and aggregating per-day step counts over the challenge window.
package googlefit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/steprally/server/pkg/challenge"
	httputil "github.com/steprally/server/pkg/infrastructure/http"
	"github.com/steprally/server/pkg/infrastructure/oauth"
	"github.com/steprally/server/pkg/types"
)

const (
	DefaultAggregateEndpoint   = "https://www.googleapis.com/fitness/v1/users/me/dataset:aggregate"
	DefaultDataSourcesEndpoint = "https://www.googleapis.com/fitness/v1/users/me/dataSources"

	stepDeltaStream      = "com.google.step_count.delta"
	estimatedStepsStream = "estimated_steps"

	// userInputMarker flags steps typed in by hand rather than measured.
	// Sources and points carrying it never count.
	userInputMarker = "user_input"
)

// Client fetches step summaries from Google Fit. Endpoint fields exist so
// tests can point it at a local server.
type Client struct {
	AggregateURL   string
	DataSourcesURL string

	// Base is the underlying RoundTripper; nil means http.DefaultTransport.
	Base http.RoundTripper
}

func NewClient() *Client {
	return &Client{
		AggregateURL:   DefaultAggregateEndpoint,
		DataSourcesURL: DefaultDataSourcesEndpoint,
	}
}

// FetchChallengeStepSummary returns the per-day step breakdown and total for
// the fixed challenge window. Zero-step buckets are absence (phone off, not
// enrolled yet) and are dropped rather than reported as measured zeros.
func (c *Client) FetchChallengeStepSummary(ctx context.Context, accessToken string) (*types.StepSummary, error) {
	httpClient := oauth.NewClient(accessToken, c.Base)

	buckets, err := c.fetchStepBuckets(ctx, httpClient, challenge.DayMillis)
	if err != nil {
		return nil, err
	}

	summary := &types.StepSummary{DailySteps: []types.DailyStep{}}
	for _, bucket := range buckets {
		if bucket.steps <= 0 {
			continue
		}
		summary.DailySteps = append(summary.DailySteps, types.DailyStep{
			Date:            challenge.FormatDate(bucket.startMillis),
			Steps:           bucket.steps,
			StartTimeMillis: bucket.startMillis,
			EndTimeMillis:   bucket.endMillis,
			Source:          bucket.origin,
		})
		summary.TotalSteps += bucket.steps
	}

	return summary, nil
}

type stepBucket struct {
	startMillis int64
	endMillis   int64
	steps       int64
	origin      string
}

type aggregateSource struct {
	DataSourceID string `json:"dataSourceId"`
}

func (c *Client) fetchStepBuckets(ctx context.Context, httpClient *http.Client, bucketMillis int64) ([]stepBucket, error) {
	sources, err := c.resolveAggregateSources(ctx, httpClient)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"aggregateBy":     sources,
		"bucketByTime":    map[string]int64{"durationMillis": bucketMillis},
		"startTimeMillis": challenge.WindowStartMillis,
		"endTimeMillis":   challenge.WindowEndMillis,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Op: "encode aggregate request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.aggregateURL(), bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: "aggregate steps", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: "aggregate steps", Err: err}
	}
	defer resp.Body.Close()

	if httpErr := httputil.ErrorFromResponse(resp); httpErr != nil {
		return nil, &Error{Kind: classifyFitnessFailure(httpErr), Op: "aggregate steps", Err: httpErr}
	}

	var data struct {
		Bucket []rawBucket `json:"bucket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &Error{Kind: KindUpstream, Op: "decode aggregate response", Err: err}
	}

	buckets := make([]stepBucket, 0, len(data.Bucket))
	for _, raw := range data.Bucket {
		if bucket, ok := parseBucket(raw); ok {
			buckets = append(buckets, bucket)
		}
	}
	return buckets, nil
}

// resolveAggregateSources lists the account's data sources and picks the step
// streams worth aggregating. Manually-entered sources never qualify; when the
// derived estimated_steps stream exists it is used exclusively so devices
// reporting overlapping raw streams don't double count.
func (c *Client) resolveAggregateSources(ctx context.Context, httpClient *http.Client) ([]aggregateSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dataSourcesURL(), nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: "list data sources", Err: err}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: "list data sources", Err: err}
	}
	defer resp.Body.Close()

	if httpErr := httputil.ErrorFromResponse(resp); httpErr != nil {
		return nil, &Error{Kind: classifyFitnessFailure(httpErr), Op: "list data sources", Err: httpErr}
	}

	var data struct {
		DataSource []struct {
			DataStreamID string `json:"dataStreamId"`
		} `json:"dataSource"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &Error{Kind: KindUpstream, Op: "decode data sources", Err: err}
	}

	var eligible []aggregateSource
	for _, src := range data.DataSource {
		id := src.DataStreamID
		if id == "" || !strings.Contains(id, stepDeltaStream) || strings.Contains(id, userInputMarker) {
			continue
		}
		if strings.Contains(id, estimatedStepsStream) {
			return []aggregateSource{{DataSourceID: id}}, nil
		}
		eligible = append(eligible, aggregateSource{DataSourceID: id})
	}

	if len(eligible) == 0 {
		return nil, &Error{
			Kind: KindNoDataSources,
			Op:   "list data sources",
			Err:  fmt.Errorf("no step sources found (excluding %s)", userInputMarker),
		}
	}
	return eligible, nil
}

// rawBucket mirrors the aggregate response. Google Fit serializes the bucket
// boundaries as decimal strings.
type rawBucket struct {
	StartTimeMillis string `json:"startTimeMillis"`
	EndTimeMillis   string `json:"endTimeMillis"`
	Dataset         []struct {
		Point []rawPoint `json:"point"`
	} `json:"dataset"`
}

type rawPoint struct {
	OriginDataSourceID string `json:"originDataSourceId"`
	DataSourceID       string `json:"dataSourceId"`
	DataOrigin         string `json:"dataOrigin"`
	Value              []struct {
		IntVal *int64   `json:"intVal"`
		FpVal  *float64 `json:"fpVal"`
	} `json:"value"`
}

// parseBucket sums a bucket's points, skipping manual entries. A point
// contributes its intVal when present, else its fpVal rounded to nearest;
// unrecognized values contribute zero. Buckets with unparseable boundaries
// are dropped.
func parseBucket(raw rawBucket) (stepBucket, bool) {
	start, err := strconv.ParseInt(raw.StartTimeMillis, 10, 64)
	if err != nil {
		return stepBucket{}, false
	}
	end, err := strconv.ParseInt(raw.EndTimeMillis, 10, 64)
	if err != nil {
		return stepBucket{}, false
	}

	bucket := stepBucket{startMillis: start, endMillis: end}
	for _, dataset := range raw.Dataset {
		for _, point := range dataset.Point {
			origin := point.origin()
			if strings.Contains(origin, userInputMarker) {
				continue
			}

			steps := point.steps()
			if steps > 0 && bucket.origin == "" && origin != "" {
				bucket.origin = origin
			}
			bucket.steps += steps
		}
	}
	return bucket, true
}

func (p rawPoint) origin() string {
	if p.OriginDataSourceID != "" {
		return p.OriginDataSourceID
	}
	if p.DataSourceID != "" {
		return p.DataSourceID
	}
	return p.DataOrigin
}

func (p rawPoint) steps() int64 {
	if len(p.Value) == 0 {
		return 0
	}
	v := p.Value[0]
	if v.IntVal != nil {
		return *v.IntVal
	}
	if v.FpVal != nil {
		return int64(math.Round(*v.FpVal))
	}
	return 0
}

// classifyFitnessFailure tags an error answer from the fitness API. A 401
// means the access token we just presented is no longer honored.
func classifyFitnessFailure(err error) ErrorKind {
	var httpErr *httputil.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
		return KindTokenExpired
	}
	return KindUpstream
}

func (c *Client) aggregateURL() string {
	if c.AggregateURL != "" {
		return c.AggregateURL
	}
	return DefaultAggregateEndpoint
}

func (c *Client) dataSourcesURL() string {
	if c.DataSourcesURL != "" {
		return c.DataSourcesURL
	}
	return DefaultDataSourcesEndpoint
}
