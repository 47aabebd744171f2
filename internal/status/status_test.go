package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Snapshot
	}{
		{
			name: "full body",
			body: `{"name":"kitchen","version":"1.6.29","uptime":42,"port":35248,
				"discovery":[{"ip":"10.0.0.7","name":"attic","version":"1.6.28"}]}`,
			want: Snapshot{
				Name: "kitchen", Version: "1.6.29", UptimeSeconds: 42, Port: 35248,
				Peers: []Peer{{Address: "10.0.0.7", Name: "attic", Version: "1.6.28"}},
			},
		},
		{
			name: "missing uptime and discovery",
			body: `{"name":"kitchen","version":"1.6.29","port":35248}`,
			want: Snapshot{Name: "kitchen", Version: "1.6.29", Port: 35248, Peers: []Peer{}},
		},
		{
			name: "empty object",
			body: `{}`,
			want: Snapshot{Name: Unknown, Version: Unknown, Peers: []Peer{}},
		},
		{
			name: "wrong types fall back",
			body: `{"name":["x"],"version":7,"uptime":"90","port":true,"discovery":"none"}`,
			want: Snapshot{Name: Unknown, Version: "7", UptimeSeconds: 90, Peers: []Peer{}},
		},
		{
			name: "fractional uptime",
			body: `{"uptime":12.9}`,
			want: Snapshot{Name: Unknown, Version: Unknown, UptimeSeconds: 12, Peers: []Peer{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsNonObject(t *testing.T) {
	for _, body := range []string{"", "null", "[]", "not json", `"str"`} {
		_, err := Parse([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestNameOr(t *testing.T) {
	assert.Equal(t, "attic", NameOr([]byte(`{"name":"attic"}`), "Taz Node"))
	assert.Equal(t, "Taz Node", NameOr([]byte(`{"version":"1"}`), "Taz Node"))
	assert.Equal(t, "Taz Node", NameOr([]byte(`garbage`), "Taz Node"))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != Path {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"name":"hall","uptime":5}`))
	}))
	defer srv.Close()

	client := NewClient(time.Second, time.Second)

	snap, err := Fetch(context.Background(), client, srv.URL+Path)
	require.NoError(t, err)
	assert.Equal(t, "hall", snap.Name)
	assert.Equal(t, int64(5), snap.UptimeSeconds)

	_, err = Fetch(context.Background(), client, srv.URL+"/missing")
	assert.ErrorIs(t, err, ErrStatusCode)
}

func TestURL(t *testing.T) {
	assert.Equal(t, "http://192.168.49.1:35248/status", URL("192.168.49.1"))
	assert.Equal(t, "http://127.0.0.1:8080/status", URLWithPort("127.0.0.1", 8080))
}

func TestParseNullFields(t *testing.T) {
	got, err := Parse([]byte(`{"name":null,"uptime":null,"discovery":null}`))
	require.NoError(t, err)
	assert.Equal(t, Unknown, got.Name)
	assert.Equal(t, int64(0), got.UptimeSeconds)
	assert.Equal(t, []Peer{}, got.Peers)
}
