package geoip

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fitlog/pkg"
)

const ipInfoTestResponse = `{
  "ip": "80.36.233.153",
  "hostname": "153.red-80-36-233.staticip.rima-tde.net",
  "city": "Palma",
  "region": "Balearic Islands",
  "country": "ES",
  "loc": "39.5680,2.6835",
  "org": "AS3352 TELEFONICA DE ESPANA S.A.U.",
  "postal": "07198",
  "timezone": "Europe/Madrid"
}`

func newTestIpInfoServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasPrefix(r.URL.Path, "/80.36.233.153") {
			pkg.WriteJSONResponseOK(w, `{"ip": "1.1.1.1"}`)
			return
		}
		pkg.WriteJSONResponseOK(w, ipInfoTestResponse)
	}))
	t.Cleanup(testServer.Close)
	return testServer
}

func TestApi_Locate(t *testing.T) {
	var calls atomic.Int32
	testServer := newTestIpInfoServer(t, &calls)

	db, mock := redismock.NewClientMock()
	mock.ExpectGet("ip-loc::80.36.233.153").RedisNil()
	mock.ExpectSet("ip-loc::80.36.233.153", "39.5680,2.6835", locationCacheTTL).SetVal("OK")
	mock.ExpectGet("ip-loc::80.36.233.153").SetVal("39.5680,2.6835")

	geoIp, err := NewApi("test-token", testServer.URL, testServer.Client(), db)
	require.NoError(t, err)
	ctx := context.Background()

	lat, lon, err := geoIp.Locate(ctx, "80.36.233.153")
	require.NoError(t, err)
	assert.Equal(t, 39.568, lat)
	assert.Equal(t, 2.6835, lon)
	assert.Equal(t, int32(1), calls.Load())

	// second time from redis
	lat, lon, err = geoIp.Locate(ctx, "80.36.233.153")
	require.NoError(t, err)
	assert.Equal(t, 39.568, lat)
	assert.Equal(t, 2.6835, lon)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApi_Locate_RedisDown(t *testing.T) {
	var calls atomic.Int32
	testServer := newTestIpInfoServer(t, &calls)

	db, mock := redismock.NewClientMock()
	mock.ExpectGet("ip-loc::80.36.233.153").SetErr(errors.New("connection refused"))
	mock.ExpectSet("ip-loc::80.36.233.153", "39.5680,2.6835", locationCacheTTL).SetErr(errors.New("connection refused"))

	geoIp, err := NewApi("test-token", testServer.URL, testServer.Client(), db)
	require.NoError(t, err)

	lat, lon, err := geoIp.Locate(context.Background(), "80.36.233.153")
	require.NoError(t, err)
	assert.Equal(t, 39.568, lat)
	assert.Equal(t, 2.6835, lon)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApi_Locate_NoLocation(t *testing.T) {
	var calls atomic.Int32
	testServer := newTestIpInfoServer(t, &calls)

	geoIp, err := NewApi("test-token", testServer.URL, testServer.Client(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = geoIp.Locate(ctx, "1.1.1.1")
	assert.ErrorIs(t, err, ErrNoLocation)

	_, _, err = geoIp.Locate(ctx, "127.0.0.1")
	assert.ErrorIs(t, err, ErrLocalIP)
	_, _, err = geoIp.Locate(ctx, "192.168.0.12")
	assert.ErrorIs(t, err, ErrLocalIP)

	_, _, err = geoIp.Locate(ctx, "localhost")
	assert.Error(t, err)

	// only the public ip reached ipinfo
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseLocation(t *testing.T) {
	lat, lon, err := parseLocation("52.5200,13.4050")
	require.NoError(t, err)
	assert.Equal(t, 52.52, lat)
	assert.Equal(t, 13.405, lon)

	for _, bad := range []string{"", "52.52", "a,b", "1,2,3", "52.52,"} {
		_, _, err := parseLocation(bad)
		assert.ErrorIs(t, err, ErrInvalidLocation, bad)
	}
}
