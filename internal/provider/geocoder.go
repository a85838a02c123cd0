package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"
)

const (
	geocodeCacheTTL     = 24 * time.Hour
	geocodeCacheCleanup = time.Hour
	geocoderTimeout     = 5 * time.Second
	geocoderUserAgent   = "safeher-alert-engine/1.0"
)

type reverseGeocodeResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Geocoder resolves coordinates to a street address using a Nominatim-compatible
// reverse endpoint. Results are cached in memory keyed by ~10m grid cells.
type Geocoder struct {
	client   *resty.Client
	endpoint string
	cache    *gocache.Cache
}

func NewGeocoder(endpoint string) (*Geocoder, error) {
	return NewGeocoderWithClient(endpoint, resty.New())
}

func NewGeocoderWithClient(endpoint string, client *resty.Client) (*Geocoder, error) {
	trimmed, err := parseEndpoint(endpoint, "geocoder")
	if err != nil {
		return nil, err
	}
	client, err = newRestyClient(client, geocoderTimeout)
	if err != nil {
		return nil, err
	}
	client.SetHeader("User-Agent", geocoderUserAgent)

	return &Geocoder{
		client:   client,
		endpoint: trimmed,
		cache:    gocache.New(geocodeCacheTTL, geocodeCacheCleanup),
	}, nil
}

func (g *Geocoder) ReverseGeocode(ctx context.Context, latitude float64, longitude float64) (string, error) {
	key := cacheKey(latitude, longitude)
	if cached, ok := g.cache.Get(key); ok {
		return cached.(string), nil
	}

	var result reverseGeocodeResponse
	response, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format": "jsonv2",
			"lat":    strconv.FormatFloat(latitude, 'f', 6, 64),
			"lon":    strconv.FormatFloat(longitude, 'f', 6, 64),
		}).
		SetResult(&result).
		Get(g.endpoint)
	if err != nil {
		return "", requestError(err)
	}
	if response.StatusCode() != http.StatusOK {
		return "", statusError(response.StatusCode(), strings.TrimSpace(response.String()))
	}

	address := strings.TrimSpace(result.DisplayName)
	if address == "" {
		msg := "geocoder returned no address"
		if result.Error != "" {
			msg = fmt.Sprintf("%s: %s", msg, result.Error)
		}
		return "", &ProviderError{StatusCode: http.StatusOK, Message: msg}
	}

	g.cache.SetDefault(key, address)
	return address, nil
}

func cacheKey(latitude float64, longitude float64) string {
	return fmt.Sprintf("%.4f,%.4f", latitude, longitude)
}
