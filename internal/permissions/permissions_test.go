//go:build !darwin

package permissions

import (
	"testing"

	"go.uber.org/zap"
)

func TestEnsureWithoutGrantModel(t *testing.T) {
	st := Ensure(zap.NewNop(), true)
	if !st.ScreenRecording || !st.Accessibility {
		t.Fatalf("status = %+v", st)
	}
}
