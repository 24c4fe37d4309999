// Package provision builds the device handle for a newly attached handset.
//
// A first sighting runs the full workflow: hardware probes, a thumbnail
// screenshot uploaded to the master, and installation of the three companion
// tools. A device the master already knows is hydrated from its stored record
// and only the companion tools are installed, because they do not survive an
// agent restart.
//
// Failure policy:
//
//   - CPU, memory, name and OS version probes degrade to a placeholder value
//     and are listed in Report.Degraded.
//   - Screenshot or upload failures leave the thumbnail empty.
//   - Resolution failures (ErrResolution) and installer failures (ErrInstall)
//     abort the workflow; no handle is returned.
package provision
