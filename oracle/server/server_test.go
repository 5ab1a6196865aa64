package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	dbm "github.com/tendermint/tm-db"

	"github.com/GPTx-global/flight-oracle/oracle/health"
	"github.com/GPTx-global/flight-oracle/oracle/log"
	"github.com/GPTx-global/flight-oracle/oracle/registry"
	"github.com/GPTx-global/flight-oracle/oracle/submitter"
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

type mockBackfiller struct {
	mock.Mock
}

func (m *mockBackfiller) Backfill(ctx context.Context) (registry.BackfillResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(registry.BackfillResult), args.Error(1)
}

type mockConsultant struct {
	mock.Mock
}

func (m *mockConsultant) Consult(ctx context.Context, req types.StatusRequest) (submitter.Report, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(submitter.Report), args.Error(1)
}

type ServerTestSuite struct {
	suite.Suite
	backfill *mockBackfiller
	consult  *mockConsultant
	store    *registry.Store
	server   *httptest.Server
	now      time.Time
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (suite *ServerTestSuite) SetupSuite() {
	log.InitLogger("error")
}

func (suite *ServerTestSuite) SetupTest() {
	suite.backfill = new(mockBackfiller)
	suite.consult = new(mockConsultant)
	suite.store = registry.New(dbm.NewMemDB())
	suite.now = time.Unix(1700000000, 0)

	checker := health.NewChecker(time.Hour)
	checker.AddCheck(health.NewFuncCheck("rpc", func(context.Context) error { return nil }))

	s := New(suite.backfill, suite.consult, suite.store, metrics.NewInmemSink(time.Second, time.Minute), checker, []string{"*"})
	s.now = func() time.Time { return suite.now }
	suite.server = httptest.NewServer(s.Handler())
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.server.Close()
	suite.backfill.AssertExpectations(suite.T())
	suite.consult.AssertExpectations(suite.T())
}

func (suite *ServerTestSuite) get(path string) (int, string) {
	resp, err := http.Get(suite.server.URL + path)
	suite.Require().NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)
	return resp.StatusCode, string(body)
}

func (suite *ServerTestSuite) TestWelcome() {
	code, body := suite.get("/")

	suite.Equal(http.StatusOK, code)
	suite.Contains(body, "Go to \"/api\"")
}

func (suite *ServerTestSuite) TestUnknownRouteListsParameters() {
	for _, path := range []string{"/unknown", "/api/unknown"} {
		code, body := suite.get(path)
		suite.Equal(http.StatusOK, code, path)
		suite.Contains(body, "Go to \"/api\"", path)
		suite.Contains(body, "/api?consult=1&index=", path)
	}

	// wrong method on a known route
	resp, err := http.Post(suite.server.URL+"/api", "text/plain", nil)
	suite.Require().NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Contains(string(body), "API available parameters")
}

func (suite *ServerTestSuite) TestAPIHelp() {
	code, body := suite.get("/api")

	suite.Equal(http.StatusOK, code)
	suite.Contains(body, "API available parameters")
}

func (suite *ServerTestSuite) TestRegister() {
	suite.backfill.On("Backfill", mock.Anything).
		Return(registry.BackfillResult{FromBlock: 0, Head: 120, Events: 20}, nil).Twice()

	for i := 0; i < 2; i++ {
		code, body := suite.get("/api?register=1")
		suite.Equal(http.StatusOK, code)
		suite.Contains(body, "20 events replayed from block 0 to 120")
	}
}

func (suite *ServerTestSuite) TestRegister_Failure() {
	suite.backfill.On("Backfill", mock.Anything).
		Return(registry.BackfillResult{Events: 3}, types.ErrStorage.Wrap("put")).Once()

	code, body := suite.get("/api?register=1")

	suite.Equal(http.StatusOK, code)
	suite.Contains(body, "failed after 3 events")
}

func (suite *ServerTestSuite) TestConsult() {
	airline := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	req := types.StatusRequest{Index: 4, Airline: airline, Flight: common.HexToHash("0x4e"), Timestamp: 1700000000}
	report := submitter.Report{Request: req, Entries: map[common.Address]submitter.Entry{
		common.HexToAddress("0x01"): {Outcome: types.Accepted},
		common.HexToAddress("0x02"): {Outcome: types.Rejected},
	}}
	suite.consult.On("Consult", mock.Anything, req).Return(report, nil).Once()

	q := url.Values{
		"consult": {"1"},
		"index":   {"4"},
		"airline": {airline.Hex()},
		"flight":  {common.HexToHash("0x4e").Hex()},
	}
	code, body := suite.get("/api?" + q.Encode())

	suite.Equal(http.StatusOK, code)
	suite.Contains(body, "2 attempted, 1 accepted, 1 rejected, 0 transport failures")
}

func (suite *ServerTestSuite) TestConsult_InvalidParameters() {
	code, body := suite.get("/api?consult=1&index=300&airline=0x00000000000000000000000000000000000000a1&flight=ND1309")

	suite.Equal(http.StatusOK, code)
	suite.Contains(body, "index")
	suite.Contains(body, "API available parameters")
	suite.consult.AssertNotCalled(suite.T(), "Consult", mock.Anything, mock.Anything)
}

func (suite *ServerTestSuite) TestConsult_Failure() {
	suite.consult.On("Consult", mock.Anything, mock.Anything).
		Return(submitter.Report{}, types.ErrStorage.Wrap("iterate")).Once()

	code, body := suite.get("/api?consult=1&index=1&airline=0x00000000000000000000000000000000000000a1&flight=ND1309")

	suite.Equal(http.StatusOK, code)
	suite.Contains(body, "Consultation failed")
}

func (suite *ServerTestSuite) TestOracles() {
	suite.Require().NoError(suite.store.Put(types.Oracle{Address: common.HexToAddress("0x01"), Indexes: [3]uint8{1, 4, 9}}))

	code, body := suite.get("/api/oracles")

	suite.Equal(http.StatusOK, code)
	var views []oracleView
	suite.Require().NoError(json.Unmarshal([]byte(body), &views))
	suite.Require().Len(views, 1)
	suite.Equal([3]uint8{1, 4, 9}, views[0].Indexes)
	suite.Equal(common.HexToAddress("0x01").Hex(), views[0].Address)
}

func (suite *ServerTestSuite) TestHealthAndMetrics() {
	metrics.IncrCounter(types.MetricSubmission, 1)

	code, body := suite.get("/health")
	suite.Equal(http.StatusOK, code)
	suite.Contains(body, "\"healthy\":true")

	code, body = suite.get("/metrics")
	suite.Equal(http.StatusOK, code)
	suite.Contains(body, "Timestamp")
}

func (suite *ServerTestSuite) TestCORS() {
	r, err := http.NewRequest(http.MethodGet, suite.server.URL+"/api", nil)
	suite.Require().NoError(err)
	r.Header.Set("Origin", "http://localhost:8000")

	resp, err := http.DefaultClient.Do(r)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestParseConsultRequest(t *testing.T) {
	now := time.Unix(1700000000, 0)
	airline := "0x00000000000000000000000000000000000000a1"

	testCases := []struct {
		name  string
		query string
		ok    bool
	}{
		{"valid with flight code", "index=4&airline=" + airline + "&flight=ND1309", true},
		{"valid with explicit timestamp", "index=0&airline=" + airline + "&flight=ND1309&timestamp=42", true},
		{"missing index", "airline=" + airline + "&flight=ND1309", false},
		{"index not a number", "index=four&airline=" + airline + "&flight=ND1309", false},
		{"index out of range", "index=256&airline=" + airline + "&flight=ND1309", false},
		{"negative index", "index=-1&airline=" + airline + "&flight=ND1309", false},
		{"bad airline", "index=4&airline=0x12&flight=ND1309", false},
		{"missing flight", "index=4&airline=" + airline, false},
		{"short hex flight", "index=4&airline=" + airline + "&flight=0x1234", false},
		{"flight code too long", "index=4&airline=" + airline + "&flight=ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456", false},
		{"bad timestamp", "index=4&airline=" + airline + "&flight=ND1309&timestamp=yesterday", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			require.NoError(t, err)

			_, err = parseConsultRequest(q, now)

			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				require.True(t, errors.Is(err, types.ErrInvalidRequest))
			}
		})
	}

	q, _ := url.ParseQuery("index=4&airline=" + airline + "&flight=ND1309")
	req, err := parseConsultRequest(q, now)
	require.NoError(t, err)
	require.Equal(t, uint64(1700000000), req.Timestamp)
	require.Equal(t, byte('N'), req.Flight[0])
	require.Equal(t, byte(0), req.Flight[31])
}
