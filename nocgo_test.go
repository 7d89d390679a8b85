package skonnx

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBuildWithCGODisabled builds every package with CGO_ENABLED=0 so the
// skonnx binary stays a static, dependency-free executable.
func TestBuildWithCGODisabled(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the whole module")
	}
	modRoot, err := os.Getwd()
	require.NoError(t, err)

	cmd := exec.Command("go", "build", "./...")
	cmd.Dir = modRoot
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "build failed with CGO disabled:\n%s", out)
}
