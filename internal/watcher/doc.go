// Package watcher reloads the devkeep config document when it changes on
// disk.
//
// The serve daemon holds a long-lived view of the config (probe staleness,
// tracked services, backup policy). When the document is edited externally,
// whether by a text editor or by a second devkeep process, the daemon should
// converge on the new document without a restart. The watcher uses fsnotify
// on the config file's parent directory, debounces the event burst a save
// produces, and hands the reloaded config to a callback.
//
// Key properties:
//   - Directory watch (survives atomic rename-over saves)
//   - 500ms debounce (one reload per save, not one per event)
//   - Reload never fails (invalid documents fall back to defaults)
//   - Graceful shutdown via Stop
//
// Example usage:
//
//	cfgStore := config.NewStore(configPath)
//
//	w, err := watcher.New(cfgStore, logger, func(cfg *config.Config) {
//		cache.Reconfigure(servicesFrom(cfg))
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := w.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
package watcher
