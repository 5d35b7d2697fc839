// Package watcher re-runs a check whenever files under a directory change.
//
// Every non-excluded directory under the root is registered with fsnotify;
// directories created later are added as they appear. Bursts of events are
// collapsed by a debounce timer so one save that touches several files
// triggers a single check.
//
// Example usage:
//
//	w, err := watcher.New("/srv/app/config", func() error {
//		report, err := verify.Directory(m, "/srv/app/config", verify.Options{})
//		if err != nil {
//			return err
//		}
//		return l.RecordVerification(id, report.Match, report.Summary())
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package watcher
