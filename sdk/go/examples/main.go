package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"supplygraph-a2a/pkg/reasoning"
	"supplygraph-a2a/sdk/go/a2a"
	"supplygraph-a2a/sdk/go/bridge"
)

func main() {
	rounds := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents/{agent}/manifest", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"agent_id":    r.PathValue("agent"),
			"name":        "Tariff Calculator",
			"description": "Computes landed duty for a shipment",
			"protocol":    map[string]any{"streaming": true},
		})
	})
	mux.HandleFunc("POST /agents/{agent}/run", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] == true {
			_, _ = io.WriteString(w, "event: stream\ndata: {\"reasoning\": [\"classify HS 8471.30\", \"look up MFN rate\"]}\n\n")
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			return
		}
		rounds++
		if rounds == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"code":    "WAITING_USER",
				"data":    map[string]any{"task_id": "task-demo", "content": map[string]any{"prompt": "What is the country of origin?"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"code":    "TASK_COMPLETED",
			"data":    map[string]any{"task_id": "task-demo", "content": "Duty: 0% under ITA"},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := a2a.NewClient(a2a.Config{BaseURL: srv.URL + "/agents", APIKey: "sk-demo"}, a2a.WithHTTPClient(srv.Client()))
	if err != nil {
		panic(err)
	}
	b := bridge.New(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	manifest, err := b.Manifest(ctx, a2a.AgentTariffCalc)
	if err != nil {
		panic(err)
	}
	fmt.Printf("agent %v: %v\n", manifest.Name, manifest.Description)

	run, err := b.Run(ctx, a2a.AgentTariffCalc, "500 laptops", a2a.RunOptions{})
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %s is %s: %s\n", run.ID, run.Status, run.RequiredAction.Message)

	run, err = b.Run(ctx, a2a.AgentTariffCalc, "Made in Vietnam", a2a.RunOptions{TaskID: run.ID})
	if err != nil {
		panic(err)
	}
	text, _ := run.Output.Text()
	fmt.Printf("task %s is %s: %s\n", run.ID, run.Status, text)

	stream, err := b.Stream(ctx, a2a.AgentTariffCalc, "500 laptops from Vietnam", a2a.RunOptions{})
	if err != nil {
		panic(err)
	}
	defer stream.Close()
	frames, err := reasoning.Collect(stream)
	if err != nil {
		panic(err)
	}
	for _, f := range frames {
		fmt.Print(f)
	}
}
