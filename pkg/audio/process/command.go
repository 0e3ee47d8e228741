package process

import (
	"context"
	"os/exec"
	"time"
)

// WaitDelay bounds how long a cancelled or stopped child may keep its
// output pipes open through grandchildren before Wait gives up on them.
const WaitDelay = 500 * time.Millisecond

// Command is exec.CommandContext for audio helpers. The child gets its own
// process group and cancelling ctx kills the whole group, so a wrapper
// script cannot leave aplay or ffmpeg running behind it.
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = WaitDelay
	ownGroup(cmd)
	return cmd
}
