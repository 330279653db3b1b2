package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
	"github.com/openfolio/engine/internal/testutil"
)

func setupAccountHandler(t *testing.T) (*AccountHandler, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	handler := NewAccountHandler(
		repository.NewAccountRepository(db),
		repository.NewLotRepository(db),
		testutil.NewTestAnalyticsService(t, db),
		testutil.NewTestLotEngine(t, db),
	)
	return handler, db
}

func TestAccountHandler_CreateAccount(t *testing.T) {
	t.Run("creates an account successfully", func(t *testing.T) {
		handler, _ := setupAccountHandler(t)

		body := `{"name": "Growth", "baseCurrency": "USD", "costBasisMethod": "fifo"}`
		req := httptest.NewRequest(http.MethodPost, "/api/account", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.CreateAccount(w, req)

		if w.Code != http.StatusCreated {
			t.Errorf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var account model.Account
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&account)

		if account.ID == "" {
			t.Error("Expected a generated account ID")
		}
		if account.CostBasisMethod != model.MethodFIFO {
			t.Errorf("Expected fifo method, got %s", account.CostBasisMethod)
		}
	})

	t.Run("returns 400 on invalid cost basis method", func(t *testing.T) {
		handler, _ := setupAccountHandler(t)

		body := `{"name": "Growth", "baseCurrency": "USD", "costBasisMethod": "average"}`
		req := httptest.NewRequest(http.MethodPost, "/api/account", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.CreateAccount(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("returns 400 on missing name", func(t *testing.T) {
		handler, _ := setupAccountHandler(t)

		body := `{"baseCurrency": "USD", "costBasisMethod": "fifo"}`
		req := httptest.NewRequest(http.MethodPost, "/api/account", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.CreateAccount(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestAccountHandler_ListAccounts(t *testing.T) {
	t.Run("returns all registered accounts", func(t *testing.T) {
		handler, db := setupAccountHandler(t)

		a1 := testutil.NewAccount().Build(t, db)
		a2 := testutil.NewAccount().WithMethod(model.MethodLIFO).Build(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
		w := httptest.NewRecorder()

		handler.ListAccounts(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var accounts []model.Account
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&accounts)

		found := make(map[string]bool)
		for _, a := range accounts {
			found[a.ID] = true
		}
		if !found[a1.ID] || !found[a2.ID] {
			t.Errorf("Expected both accounts in response, got %v", found)
		}
	})
}

func TestAccountHandler_Positions(t *testing.T) {
	t.Run("returns positions for an account with holdings", func(t *testing.T) {
		handler, db := setupAccountHandler(t)

		account := testutil.NewAccount().Build(t, db)
		instrument := testutil.NewInstrument().Build(t, db)

		ingest := testutil.NewTestIngestService(t, db)
		buy := testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02"))
		if _, err := ingest.IngestTransaction(context.Background(), buy); err != nil {
			t.Fatal(err)
		}

		req := testutil.NewRequestWithURLParams(
			http.MethodGet,
			"/api/account/"+account.ID+"/positions",
			map[string]string{"uuid": account.ID},
		)
		w := httptest.NewRecorder()

		handler.Positions(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var positions []model.Position
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&positions)

		if len(positions) != 1 || positions[0].Quantity != 100 {
			t.Errorf("Expected one position of 100 shares, got %+v", positions)
		}
	})

	t.Run("returns empty array for an account with no holdings", func(t *testing.T) {
		handler, db := setupAccountHandler(t)

		account := testutil.NewAccount().Build(t, db)

		req := testutil.NewRequestWithURLParams(
			http.MethodGet,
			"/api/account/"+account.ID+"/positions",
			map[string]string{"uuid": account.ID},
		)
		w := httptest.NewRecorder()

		handler.Positions(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var positions []model.Position
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&positions)

		if positions == nil {
			t.Error("Expected non-nil array, got nil")
		}
		if len(positions) != 0 {
			t.Errorf("Expected empty array, got %d positions", len(positions))
		}
	})

	t.Run("excludes lots opened after as_of", func(t *testing.T) {
		handler, db := setupAccountHandler(t)

		account := testutil.NewAccount().Build(t, db)
		instrument := testutil.NewInstrument().Build(t, db)

		ingest := testutil.NewTestIngestService(t, db)
		buy := testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02"))
		if _, err := ingest.IngestTransaction(context.Background(), buy); err != nil {
			t.Fatal(err)
		}

		req := testutil.NewRequestWithQueryParams(
			http.MethodGet,
			"/api/account/"+account.ID+"/positions",
			map[string]string{"as_of": "2025-01-01"},
		)
		req = testutil.WithURLParams(req, map[string]string{"uuid": account.ID})
		w := httptest.NewRecorder()

		handler.Positions(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var positions []model.Position
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&positions)

		if len(positions) != 0 {
			t.Errorf("Expected no positions before the first buy, got %+v", positions)
		}
	})

	t.Run("returns 404 for unknown account", func(t *testing.T) {
		handler, _ := setupAccountHandler(t)

		ghost := testutil.MakeID()
		req := testutil.NewRequestWithURLParams(
			http.MethodGet,
			"/api/account/"+ghost+"/positions",
			map[string]string{"uuid": ghost},
		)
		w := httptest.NewRecorder()

		handler.Positions(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestAccountHandler_Returns(t *testing.T) {
	t.Run("returns 400 when the range is missing", func(t *testing.T) {
		handler, db := setupAccountHandler(t)

		account := testutil.NewAccount().Build(t, db)

		req := testutil.NewRequestWithURLParams(
			http.MethodGet,
			"/api/account/"+account.ID+"/returns",
			map[string]string{"uuid": account.ID},
		)
		w := httptest.NewRecorder()

		handler.Returns(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("returns 400 on an inverted range", func(t *testing.T) {
		handler, db := setupAccountHandler(t)

		account := testutil.NewAccount().Build(t, db)

		req := testutil.NewRequestWithQueryParams(
			http.MethodGet,
			"/api/account/"+account.ID+"/returns",
			map[string]string{"from": "2025-06-01", "to": "2025-01-01"},
		)
		req = testutil.WithURLParams(req, map[string]string{"uuid": account.ID})
		w := httptest.NewRecorder()

		handler.Returns(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("computes returns over a priced range", func(t *testing.T) {
		handler, db := setupAccountHandler(t)

		account := testutil.NewAccount().Build(t, db)
		instrument := testutil.NewInstrument().Build(t, db)
		testutil.InsertPrice(t, db, instrument.ID, "2025-01-02", 10)
		testutil.InsertPrice(t, db, instrument.ID, "2025-01-05", 11)

		ingest := testutil.NewTestIngestService(t, db)
		buy := testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02"))
		if _, err := ingest.IngestTransaction(context.Background(), buy); err != nil {
			t.Fatal(err)
		}

		req := testutil.NewRequestWithQueryParams(
			http.MethodGet,
			"/api/account/"+account.ID+"/returns",
			map[string]string{"from": "2025-01-02", "to": "2025-01-05"},
		)
		req = testutil.WithURLParams(req, map[string]string{"uuid": account.ID})
		w := httptest.NewRecorder()

		handler.Returns(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var series model.ReturnSeries
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&series)

		// 100 shares bought at 10 marked to 11: +10%.
		if series.TWRR < 0.09 || series.TWRR > 0.11 {
			t.Errorf("Expected TWRR near 0.10, got %v", series.TWRR)
		}
	})
}

func TestAccountHandler_Rebuild(t *testing.T) {
	t.Run("replays the ledger and returns 202", func(t *testing.T) {
		handler, db := setupAccountHandler(t)

		account := testutil.NewAccount().Build(t, db)
		instrument := testutil.NewInstrument().Build(t, db)

		ingest := testutil.NewTestIngestService(t, db)
		buy := testutil.Buy(account.ID, instrument.ID, 100, 10, testutil.Date(t, "2025-01-02"))
		if _, err := ingest.IngestTransaction(context.Background(), buy); err != nil {
			t.Fatal(err)
		}

		req := testutil.NewRequestWithURLParams(
			http.MethodPost,
			"/api/account/"+account.ID+"/rebuild",
			map[string]string{"uuid": account.ID},
		)
		w := httptest.NewRecorder()

		handler.Rebuild(w, req)

		if w.Code != http.StatusAccepted {
			t.Errorf("Expected 202, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("returns 404 for unknown account", func(t *testing.T) {
		handler, _ := setupAccountHandler(t)

		ghost := testutil.MakeID()
		req := testutil.NewRequestWithURLParams(
			http.MethodPost,
			"/api/account/"+ghost+"/rebuild",
			map[string]string{"uuid": ghost},
		)
		w := httptest.NewRecorder()

		handler.Rebuild(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}
