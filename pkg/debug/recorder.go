package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ilkoid/poncho-react/pkg/utils"
)

// Recorder записывает трейс одного запуска агента и отдаёт его в Sink.
//
// Потокобезопасен — инструменты одного шага записываются из разных горутин.
type Recorder struct {
	mu sync.Mutex

	config RecorderConfig
	sinks  []Sink

	log              DebugLog
	currentIteration *Iteration
	iterationStart   time.Time
	visitedTools     map[string]struct{}
	errors           []string
	totalTokens      int
}

// RecorderConfig конфигурация для создания Recorder.
type RecorderConfig struct {
	// IncludeToolArgs — включать аргументы инструментов в лог
	IncludeToolArgs bool

	// IncludeToolResults — включать результаты инструментов в лог
	IncludeToolResults bool

	// MaxResultSize — максимальный размер результата (превышение обрезается)
	// 0 означает без ограничений
	MaxResultSize int
}

// NewRecorder создает Recorder для нового запуска.
//
// Без sinks трейс только накапливается и доступен через Log().
func NewRecorder(cfg RecorderConfig, sinks ...Sink) *Recorder {
	now := time.Now()
	runID := fmt.Sprintf("debug_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])

	return &Recorder{
		config: cfg,
		sinks:  sinks,
		log: DebugLog{
			RunID:     runID,
			Timestamp: now,
		},
		visitedTools: make(map[string]struct{}),
		errors:       make([]string, 0),
	}
}

// Start начинает запись с задачей пользователя.
func (r *Recorder) Start(agent, userQuery string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Agent = agent
	r.log.UserQuery = userQuery
	r.log.Timestamp = time.Now()
}

// StartIteration начинает запись новой итерации.
func (r *Recorder) StartIteration(num int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeIterationLocked()
	r.currentIteration = &Iteration{Number: num}
	r.iterationStart = time.Now()
}

// RecordLLMRequest записывает информацию о запросе к LLM.
func (r *Recorder) RecordLLMRequest(req LLMRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentIteration != nil {
		r.currentIteration.LLMRequest = req
	}
}

// RecordLLMResponse записывает ответ от LLM.
func (r *Recorder) RecordLLMResponse(resp LLMResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentIteration == nil {
		return
	}
	r.currentIteration.LLMResponse = resp
	r.currentIteration.IsFinal = resp.Error == "" && len(resp.ToolCalls) == 0
	r.totalTokens += resp.PromptTokens + resp.CompletionTokens

	if resp.Error != "" {
		r.errors = append(r.errors, fmt.Sprintf("LLM error: %s", resp.Error))
	}
}

// RecordToolExecution записывает выполнение инструмента.
func (r *Recorder) RecordToolExecution(exec ToolExecution) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentIteration == nil {
		return
	}

	// Применяем конфигурацию включения/обрезки данных
	if !r.config.IncludeToolArgs {
		exec.Args = ""
	}
	if !r.config.IncludeToolResults {
		exec.Result = ""
	} else if r.config.MaxResultSize > 0 && len(exec.Result) > r.config.MaxResultSize {
		exec.Result = exec.Result[:r.config.MaxResultSize] + "... (truncated)"
		exec.ResultTruncated = true
	}

	r.currentIteration.ToolsExecuted = append(r.currentIteration.ToolsExecuted, exec)
	r.visitedTools[exec.Name] = struct{}{}

	if !exec.Success && exec.Error != "" {
		r.errors = append(r.errors, fmt.Sprintf("Tool %s: %s", exec.Name, exec.Error))
	}
}

// EndIteration завершает текущую итерацию.
func (r *Recorder) EndIteration() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeIterationLocked()
}

func (r *Recorder) closeIterationLocked() {
	if r.currentIteration == nil {
		return
	}
	r.currentIteration.Duration = time.Since(r.iterationStart).Milliseconds()
	r.log.Iterations = append(r.log.Iterations, *r.currentIteration)
	r.currentIteration = nil
}

// Finalize завершает запись и отдаёт JSON во все sinks.
//
// Возвращает расположения, куда трейс был сохранён.
// Ошибка одного sink не мешает остальным.
func (r *Recorder) Finalize(ctx context.Context, finalResult string, runErr error, duration time.Duration) ([]string, error) {
	r.mu.Lock()
	r.closeIterationLocked()
	r.log.FinalResult = finalResult
	r.log.Duration = duration.Milliseconds()
	if runErr != nil {
		r.log.Error = runErr.Error()
		r.errors = append(r.errors, runErr.Error())
	}
	r.buildSummary()

	data, err := json.MarshalIndent(r.log, "", "  ")
	runID := r.log.RunID
	sinks := r.sinks
	r.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to marshal debug log: %w", err)
	}

	var (
		locations []string
		firstErr  error
	)
	for _, sink := range sinks {
		loc, err := sink.Write(ctx, runID, data)
		if err != nil {
			utils.Warn("Debug trace sink failed", "run_id", runID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		locations = append(locations, loc)
	}
	return locations, firstErr
}

// buildSummary формирует агрегированную статистику.
func (r *Recorder) buildSummary() {
	summary := Summary{
		Errors:       r.errors,
		VisitedTools: make([]string, 0, len(r.visitedTools)),
		TotalTokens:  r.totalTokens,
	}

	for tool := range r.visitedTools {
		summary.VisitedTools = append(summary.VisitedTools, tool)
	}
	sort.Strings(summary.VisitedTools)

	for _, iter := range r.log.Iterations {
		summary.TotalLLMCalls++
		summary.TotalLLMDuration += iter.LLMResponse.Duration

		for _, tool := range iter.ToolsExecuted {
			summary.TotalToolsExecuted++
			summary.TotalToolDuration += tool.Duration
		}
	}

	r.log.Summary = summary
}

// Log возвращает копию накопленного трейса.
func (r *Recorder) Log() DebugLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.log
	out.Iterations = append([]Iteration(nil), r.log.Iterations...)
	return out
}

// GetRunID возвращает идентификатор текущей сессии.
func (r *Recorder) GetRunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.RunID
}
