package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/danmuck/scenebridge/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(reconnects)
	RecordReconnect()
	if got := testutil.ToFloat64(reconnects); got != before+1 {
		t.Fatalf("reconnects=%v want %v", got, before+1)
	}

	beforeSent := testutil.ToFloat64(payloadBytes.WithLabelValues("sent"))
	RecordPayload("sent", 128)
	RecordPayload("sent", 0)
	if got := testutil.ToFloat64(payloadBytes.WithLabelValues("sent")); got != beforeSent+128 {
		t.Fatalf("payload bytes=%v want %v", got, beforeSent+128)
	}

	beforeSelected := testutil.ToFloat64(pushes.WithLabelValues("selected"))
	beforeMeshes := testutil.ToFloat64(recordsBuilt.WithLabelValues("mesh"))
	RecordPush(true, 2, 5)
	if got := testutil.ToFloat64(pushes.WithLabelValues("selected")); got != beforeSelected+1 {
		t.Fatalf("selected pushes=%v", got)
	}
	if got := testutil.ToFloat64(recordsBuilt.WithLabelValues("mesh")); got != beforeMeshes+2 {
		t.Fatalf("meshes built=%v", got)
	}

	RecordRoundTrip("*IDLE*", "*IDLE*", 3*time.Millisecond)
	RecordReplyTimeout()
	RecordHTTPRequest("bridge-a", "GET", "/health", 200, 12*time.Millisecond)
}

func TestRequestMetricsUsesRoutePattern(t *testing.T) {
	testlog.Start(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(logging.Component("observability.test"), "/registry/:namespace"))
	r.Use(RequestMetrics("bridge-mw"))
	r.GET("/registry/:namespace", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	counter := httpRequests.WithLabelValues("bridge-mw", "GET", "/registry/:namespace", "204")
	before := testutil.ToFloat64(counter)

	for _, ns := range []string{"items", "assets"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/registry/"+ns, nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("status=%d", w.Code)
		}
	}
	if got := testutil.ToFloat64(counter); got != before+2 {
		t.Fatalf("requests=%v want %v", got, before+2)
	}

	missed := httpRequests.WithLabelValues("bridge-mw", "GET", unmatchedRoute, "404")
	beforeMissed := testutil.ToFloat64(missed)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	if got := testutil.ToFloat64(missed); got != beforeMissed+1 {
		t.Fatalf("unmatched requests=%v want %v", got, beforeMissed+1)
	}
}
