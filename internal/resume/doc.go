// Package resume drives a download to completion across interrupted
// transfers.
//
// Before each attempt the destination file is stat'ed; its size becomes the
// resume offset and decides between append and truncate. Interrupted
// attempts are retried, a server that refuses the offset ends the download
// quietly with the partial file kept, and every other failure is returned.
//
// # Usage
//
//	err := resume.Download(ctx, "https://example.com/file.iso",
//	    resume.WithPath("~/Downloads/file.iso"),
//	    resume.WithHeaders(map[string]string{"Authorization": "Bearer ..."}),
//	)
//
// Progress is written to os.Stderr unless WithStream says otherwise:
//
//	    42%      420 MiB        12 MiB/s            0:00:48 ETA
package resume
