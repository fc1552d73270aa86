//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"secure-transfer/internal/db"
	"secure-transfer/internal/server"
)

// TestAPIWorkflow exercises the whole transfer flow against real
// Postgres and MinIO instances. Requires DATABASE_URL and the ST_S3_*
// variables; run with -tags integration.
func TestAPIWorkflow(t *testing.T) {
	srv := setupTestServer(t)
	defer srv.Close()

	client := &http.Client{Timeout: 30 * time.Second}

	t.Run("Readiness", func(t *testing.T) {
		resp, err := client.Get(srv.URL + "/ready")
		if err != nil {
			t.Fatalf("readiness check failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}

		var result map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("Failed to decode readiness response: %v", err)
		}
		if status, ok := result["status"].(string); !ok || status != "ok" {
			t.Errorf("Expected status 'ok', got %v", result["status"])
		}
	})

	login := func(t *testing.T, username, password string) string {
		t.Helper()
		body, _ := json.Marshal(map[string]string{"username": username, "password": password})
		resp, err := client.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(bodyBytes))
		}
		var result struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("Failed to decode login response: %v", err)
		}
		if result.Token == "" {
			t.Fatal("No token returned")
		}
		return result.Token
	}

	var aliceToken, bobToken string
	t.Run("Login", func(t *testing.T) {
		aliceToken = login(t, "alice", "alice123")
		bobToken = login(t, "bob", "bob123")

		body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
		resp, err := client.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected status 401 for bad password, got %d", resp.StatusCode)
		}
	})

	var transferID string
	t.Run("Initiate Transfer", func(t *testing.T) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		if err := writer.WriteField("receiver", "bob"); err != nil {
			t.Fatalf("Failed to write receiver field: %v", err)
		}
		part, err := writer.CreateFormFile("file", "hello.txt")
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		if _, err := part.Write([]byte("Hello World")); err != nil {
			t.Fatalf("Failed to write file content: %v", err)
		}
		writer.Close()

		req, _ := http.NewRequest("POST", srv.URL+"/api/transfers", &buf)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+aliceToken)

		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Initiate failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			bodyBytes, _ := io.ReadAll(resp.Body)
			t.Fatalf("Expected status 202, got %d: %s", resp.StatusCode, string(bodyBytes))
		}

		var result struct {
			TransferID string `json:"transferId"`
			Message    string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("Failed to decode initiate response: %v", err)
		}
		if result.TransferID == "" {
			t.Fatal("No transfer ID returned")
		}
		transferID = result.TransferID
	})

	t.Run("Poll Until Completed", func(t *testing.T) {
		deadline := time.Now().Add(30 * time.Second)
		for time.Now().Before(deadline) {
			req, _ := http.NewRequest("GET", srv.URL+"/api/transfers/"+transferID, nil)
			req.Header.Set("Authorization", "Bearer "+aliceToken)
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("Status poll failed: %v", err)
			}
			var tr struct {
				Status        string `json:"status"`
				FailureReason string `json:"failureReason"`
			}
			err = json.NewDecoder(resp.Body).Decode(&tr)
			resp.Body.Close()
			if err != nil {
				t.Fatalf("Failed to decode status response: %v", err)
			}
			switch tr.Status {
			case "COMPLETED":
				return
			case "FAILED":
				t.Fatalf("Transfer failed: %s", tr.FailureReason)
			}
			time.Sleep(2 * time.Second)
		}
		t.Fatal("Transfer never completed")
	})

	t.Run("Download Content", func(t *testing.T) {
		req, _ := http.NewRequest("GET", srv.URL+"/api/transfers/"+transferID+"/content", nil)
		req.Header.Set("Authorization", "Bearer "+bobToken)

		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(bodyBytes))
		}
		if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="hello.txt"`) {
			t.Errorf("Unexpected Content-Disposition: %q", cd)
		}
		content, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("Failed to read download content: %v", err)
		}
		if string(content) != "Hello World" {
			t.Errorf("Expected 'Hello World', got '%s'", string(content))
		}
	})

	t.Run("Sender Cannot Download", func(t *testing.T) {
		req, _ := http.NewRequest("GET", srv.URL+"/api/transfers/"+transferID+"/content", nil)
		req.Header.Set("Authorization", "Bearer "+aliceToken)

		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("Expected status 403, got %d", resp.StatusCode)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := client.Get(srv.URL + "/metrics")
		if err != nil {
			t.Fatalf("Metrics request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "st_transfers_completed_total") {
			t.Error("Missing st_transfers_completed_total in metrics")
		}
	})
}

// setupTestServer wires a server against the Postgres and MinIO
// instances named by the environment.
func setupTestServer(t *testing.T) *httptest.Server {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	if os.Getenv("ST_S3_ENDPOINT") == "" {
		t.Skip("ST_S3_ENDPOINT not set; skipping integration test")
	}

	dbConn, err := server.OpenDB(dsn)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { _ = dbConn.Close() })

	if err := db.RunMigrations(dbConn); err != nil {
		t.Fatalf("Migrations failed: %v", err)
	}
	if err := server.SeedDemoUsers(context.Background(), dbConn); err != nil {
		t.Fatalf("Seeding users failed: %v", err)
	}

	minioClient, bucket, err := server.NewMinioClient()
	if err != nil {
		t.Fatalf("MinIO setup failed: %v", err)
	}
	blobs := server.NewMinioBlobStore(minioClient, bucket)
	store := server.NewTransferStore(dbConn)
	users := server.NewUserDirectory(dbConn)

	engine := server.NewEngine(store, blobs, users, nil, server.EngineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)
	t.Cleanup(func() {
		cancel()
		engine.Wait()
	})

	srv := server.New(server.Config{
		Addr: ":0",
		Auth: server.AuthConfig{
			TokenSecret: "integration-test-secret",
			TokenTTL:    time.Hour,
			Users:       users,
		},
		Engine: engine,
		DB:     dbConn,
		Blob:   blobs,
	})

	return httptest.NewServer(srv.Handler())
}
