package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(saves.WithLabelValues("details", "saved"))
	IncSave("details", "saved")
	assert.Equal(t, before+1, testutil.ToFloat64(saves.WithLabelValues("details", "saved")))

	before = testutil.ToFloat64(validationFailures.WithLabelValues("from", "past_date"))
	IncValidationFailure("from", "past_date")
	assert.Equal(t, before+1, testutil.ToFloat64(validationFailures.WithLabelValues("from", "past_date")))

	IncHTTP("validate")
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("validate")))
}
