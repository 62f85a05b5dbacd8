package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIssueAndParse(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.IssueToken(42, RoleStudent)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	user, err := v.Parse(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if user.ID != 42 || user.Role != RoleStudent {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	v := NewVerifier("test-secret")

	t.Run("garbage", func(t *testing.T) {
		if _, err := v.Parse("not.a.token"); err == nil {
			t.Fatal("expected error for malformed token")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewVerifier("other-secret")
		token, err := other.IssueToken(42, RoleStudent)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		if _, err := v.Parse(token); err == nil {
			t.Fatal("expected error for token signed with different secret")
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		token, err := v.IssueToken(42, "superuser")
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		if _, err := v.Parse(token); err == nil {
			t.Fatal("expected error for unknown role")
		}
	})
}

func TestRequireAuth(t *testing.T) {
	v := NewVerifier("test-secret")
	var gotUser *User
	handler := v.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = CurrentUser(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("valid bearer token", func(t *testing.T) {
		token, err := v.IssueToken(7, RoleTeacher)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if gotUser == nil || gotUser.ID != 7 || gotUser.Role != RoleTeacher {
			t.Fatalf("unexpected user in context: %+v", gotUser)
		}
	})
}

func TestRequireRoles(t *testing.T) {
	handler := RequireRoles(RoleTeacher, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		user   *User
		status int
	}{
		{name: "teacher allowed", user: &User{ID: 1, Role: RoleTeacher}, status: http.StatusOK},
		{name: "admin allowed", user: &User{ID: 2, Role: RoleAdmin}, status: http.StatusOK},
		{name: "student forbidden", user: &User{ID: 3, Role: RoleStudent}, status: http.StatusForbidden},
		{name: "no user", user: nil, status: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.user != nil {
				req = req.WithContext(WithUser(req.Context(), tc.user))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}
