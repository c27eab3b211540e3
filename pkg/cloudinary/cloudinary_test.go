package cloudinary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildPublicID(t *testing.T) {
	require.Equal(t, "oelp/fixtures/3/12/case_1_in.txt", BuildPublicID("/oelp/fixtures/", "3/12/case_1_in.txt"))
	require.Equal(t, "3/12/case-1.txt", BuildPublicID("", "../3/12/case 1.txt"))
	require.Contains(t, BuildPublicID("oelp", ""), "oelp/fixture-")
}

func TestDownloadReadsFixture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("1 2\n"))
	}))
	defer server.Close()

	svc, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret"}, zerolog.Nop())
	require.NoError(t, err)

	body, err := svc.Download(context.Background(), server.URL+"/case_1_in.txt")
	require.NoError(t, err)
	require.Equal(t, "1 2\n", string(body))

	_, err = svc.Download(context.Background(), server.URL+"/missing")
	require.Error(t, err)

	_, err = svc.Download(context.Background(), " ")
	require.ErrorIs(t, err, ErrEmptyLocation)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}
