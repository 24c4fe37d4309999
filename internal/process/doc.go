// Package process supervises long-running child processes.
//
// The agent uses it to own the adb server when adb.managed is set, so a
// crashed server is restarted instead of silently stopping device tracking.
//
// Features:
//   - Start/stop with SIGTERM to the process group, SIGKILL after a grace period
//   - Restart on unexpected exit with exponential backoff
//   - Optional readiness probe after each start
//   - Optional health watchdog that kills a hung process
//   - Line-based stdout/stderr capture into the logger
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "adb-server",
//	    Binary:           "adb",
//	    Args:             []string{"-P", "5037", "nodaemon", "server"},
//	    RestartOnFailure: true,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
