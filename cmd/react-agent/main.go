// React-agent — CLI для запуска ReAct агента.
//
// Использование:
//
//	./react-agent "запрос"            один запрос и выход
//	./react-agent                     интерактивный режим (/reset, /history, /exit)
//	./react-agent -model local "..."  выбрать модель из config.yaml
//	./react-agent -stream "..."       потоковый ответ без инструментов
//	./react-agent -debug "..."        debug логи и JSON трейс запуска
//
// config.yaml ищется рядом с бинарником, затем в текущей директории.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilkoid/poncho-react/pkg/agent"
	"github.com/ilkoid/poncho-react/pkg/chain"
	"github.com/ilkoid/poncho-react/pkg/config"
	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

// Version — версия утилиты (заполняется при сборке)
var Version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "Path to config.yaml (default: next to binary or ./config.yaml)")
		modelName   = flag.String("model", "", "Model from models.definitions (default: models.default_chat)")
		streamFlag  = flag.Bool("stream", false, "Stream the answer token by token (tools disabled)")
		debugFlag   = flag.Bool("debug", false, "Enable debug logging and JSON traces")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format")
		showVersion = flag.Bool("version", false, "Show version")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("react-agent version %s\n", Version)
		return
	}

	if err := run(*configPath, *modelName, *streamFlag, *debugFlag, *jsonOutput, strings.Join(flag.Args(), " ")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, modelName string, stream, debugMode, jsonOutput bool, task string) error {
	if configPath == "" {
		configPath = findConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	logOpts := utils.LoggerOptions{Level: cfg.Log.Level}
	if debugMode {
		logOpts.Level = "debug"
		cfg.Debug.Enabled = true
	}
	if cfg.Log.File {
		if _, err := utils.InitFileLogger(cfg.Log.Dir, logOpts); err != nil {
			return err
		}
	} else {
		utils.InitLogger(os.Stderr, logOpts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer utils.SetupGracefulShutdown(cancel)()

	ag, err := agent.NewFromConfig(cfg, modelName)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	if !jsonOutput && !stream {
		sub, err := ag.Subscribe()
		if err != nil {
			return err
		}
		go printEvents(sub)
	}

	if task != "" {
		return runOnce(ctx, ag, cfg, task, stream, jsonOutput)
	}
	return repl(ctx, ag, cfg, stream, jsonOutput)
}

func runOnce(ctx context.Context, ag *agent.Agent, cfg *config.AppConfig, task string, stream, jsonOutput bool) error {
	if stream {
		_, err := streamAnswer(ctx, ag.Provider(), cfg.Agent.SystemPrompt, task)
		return err
	}

	out, err := ag.Run(ctx, task)
	if jsonOutput {
		printJSON(task, out, err)
		return nil
	}
	if err != nil {
		return err
	}
	printHuman(out)
	return nil
}

// repl — интерактивный режим. История копится между запросами.
func repl(ctx context.Context, ag *agent.Agent, cfg *config.AppConfig, stream, jsonOutput bool) error {
	fmt.Printf("react-agent %s (%s). Commands: /reset, /history, /exit\n", Version, ag.Name())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			ag.Reset()
			fmt.Println("history cleared")
			continue
		case "/history":
			printHistory(ag.History())
			continue
		}

		if err := runOnce(ctx, ag, cfg, line, stream, jsonOutput); err != nil {
			if errors.Is(err, chain.ErrCancelled) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// streamAnswer печатает ответ модели по мере генерации.
//
// Стриминг идёт мимо ReAct цикла, поэтому инструменты недоступны.
func streamAnswer(ctx context.Context, provider llm.Provider, systemPrompt, task string) (string, error) {
	sp, ok := provider.(llm.StreamingProvider)
	if !ok {
		return "", fmt.Errorf("provider %s does not support streaming", llm.ProviderName(provider))
	}

	var msgs []llm.Message
	if systemPrompt != "" {
		msgs = append(msgs, llm.SystemMessage(systemPrompt))
	}
	msgs = append(msgs, llm.UserMessage(task))

	text, err := llm.CollectStream(sp.Stream(ctx, msgs), func(chunk llm.StreamChunk) {
		fmt.Print(chunk.Delta)
	})
	fmt.Println()
	return text, err
}

// findConfigPath: рядом с бинарником, иначе ./config.yaml.
func findConfigPath() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "config.yaml"
}
