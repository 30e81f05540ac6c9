package app

import (
	"encoding/json"
	"net/http"
	"os"
	"time"
)

// The demo application keeps the binary runnable out of the box and gives
// the worker path something to load in tests.
func init() {
	Register("demo", func() (http.Handler, error) {
		mux := http.NewServeMux()
		mux.HandleFunc("/", demoIndex)
		return mux, nil
	})
}

func demoIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"pid":       os.Getpid(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
