package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// BlameLine returns the SHA of the commit that last touched a single line,
// the seed the trace engine's decision trail starts from.
func BlameLine(ctx context.Context, repoPath, path string, line int) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "blame", "-L", fmt.Sprintf("%d,%d", line, line), "--porcelain", "--", path)
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git blame failed for %s:%d: %w", path, line, err)
	}

	fields := strings.Fields(string(output))
	if len(fields) == 0 {
		return "", fmt.Errorf("no blame output for %s:%d", path, line)
	}
	return fields[0], nil
}
