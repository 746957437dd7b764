package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ilkoid/poncho-react/pkg/chain"
	"github.com/ilkoid/poncho-react/pkg/events"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

// printEvents печатает ход выполнения в stderr, ответ идёт в stdout.
func printEvents(sub events.Subscriber) {
	for event := range sub.Events() {
		switch data := event.Data.(type) {
		case events.ThinkingData:
			if data.Iteration > 1 {
				fmt.Fprintf(os.Stderr, "  … thinking (step %d)\n", data.Iteration)
			}
		case events.ToolCallData:
			fmt.Fprintf(os.Stderr, "  → %s %s\n", data.ToolName, utils.Truncate(data.Args, 120))
		case events.ToolResultData:
			mark := "←"
			if data.IsError {
				mark = "✗"
			}
			fmt.Fprintf(os.Stderr, "  %s %s (%s): %s\n", mark, data.ToolName, data.Duration.Round(time.Millisecond), utils.Truncate(data.Result, 200))
		}
	}
}

// printHuman выводит результат в человекочитаемом формате.
func printHuman(out chain.Output) {
	fmt.Println(out.Result)
	fmt.Fprintf(os.Stderr, "  [%d thinking, %d acting, %d tokens, %d ms]\n",
		out.Thinking, out.Acting, out.Usage.TotalTokens, out.Duration.Milliseconds())
	for _, p := range out.TracePaths {
		fmt.Fprintf(os.Stderr, "  debug trace: %s\n", p)
	}
}

// printJSON выводит результат в JSON формате.
func printJSON(task string, out chain.Output, runErr error) {
	result := struct {
		Query      string         `json:"query"`
		Result     string         `json:"result"`
		Thinking   int            `json:"thinking"`
		Acting     int            `json:"acting"`
		Usage      llm.TokenUsage `json:"usage"`
		DurationMs int64          `json:"duration_ms"`
		DebugLogs  []string       `json:"debug_logs,omitempty"`
		Error      string         `json:"error,omitempty"`
		Success    bool           `json:"success"`
	}{
		Query:      task,
		Result:     out.Result,
		Thinking:   out.Thinking,
		Acting:     out.Acting,
		Usage:      out.Usage,
		DurationMs: out.Duration.Milliseconds(),
		DebugLogs:  out.TracePaths,
		Success:    runErr == nil,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// printHistory выводит накопленную историю диалога.
func printHistory(history []llm.Message) {
	for i, msg := range history {
		content := msg.Content
		if content == "" && len(msg.ToolCalls) > 0 {
			content = fmt.Sprintf("<%d tool calls>", len(msg.ToolCalls))
		}
		fmt.Printf("%d. [%s] %s\n", i+1, msg.Role, utils.Truncate(content, 200))
	}
}
