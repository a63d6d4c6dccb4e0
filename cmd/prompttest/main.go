package main

// Score a resume against a job description and optionally run one tuning
// session against the configured LLM endpoint:
//   go run ./cmd/prompttest -resume cv.pdf -jd posting.md
//   go run ./cmd/prompttest -resume cv.md -jd-url https://jobs.example/1 -tune -key $OPENROUTER_KEY

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"resumate/internal/appstate"
	"resumate/internal/extract"
	"resumate/internal/jobfetch"
	"resumate/internal/keywords"
	openai "resumate/internal/llm/openai"
	"resumate/internal/scoring"
	"resumate/internal/shared/config"
	"resumate/internal/shared/storage/kv"
	"resumate/internal/tuning"
)

func main() {
	cfg := config.Load()

	resumePath := flag.String("resume", "", "Path to resume file (pdf, docx, md or txt)")
	jdPath := flag.String("jd", "", "Path to job description file")
	jdURL := flag.String("jd-url", "", "Fetch the job description from this URL instead")
	keywordsPath := flag.String("keywords", cfg.KeywordsFile, "Keyword dictionary file (default: built-in list)")
	tune := flag.Bool("tune", false, "Run a tuning session and print the tuned resume")
	instructions := flag.String("instructions", "", "Extra instructions for the tuning prompt")
	noStream := flag.Bool("no-stream", false, "Request one whole completion instead of a stream")
	apiKey := flag.String("key", os.Getenv("OPENROUTER_API_KEY"), "LLM API key")
	model := flag.String("model", "openai/gpt-4.1", "LLM model")
	outPath := flag.String("out", "", "Path to write the JSON result (optional)")
	flag.Parse()

	if strings.TrimSpace(*resumePath) == "" {
		exitErr("resume path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	resumeBytes, err := os.ReadFile(*resumePath)
	if err != nil {
		exitErr(fmt.Sprintf("read resume: %v", err))
	}
	resume, err := extract.FromBytes(ctx, resumeBytes, "", filepath.Base(*resumePath))
	if err != nil {
		exitErr(fmt.Sprintf("extract resume text: %v", err))
	}

	jobDescription, err := loadJobDescription(ctx, *jdPath, *jdURL)
	if err != nil {
		exitErr(err.Error())
	}

	dictionary := keywords.Default()
	if strings.TrimSpace(*keywordsPath) != "" {
		dictionary, err = keywords.LoadDictionary(*keywordsPath)
		if err != nil {
			exitErr(err.Error())
		}
	}

	st, err := appstate.New(kv.NewMemoryStore(appstate.Schema), appstate.WithDebounce(0))
	if err != nil {
		exitErr(err.Error())
	}
	if err := st.Update(ctx, func(v *appstate.Values) {
		v.ResumeMd = resume.Text
		v.JobDescription = jobDescription
		v.Keywords = dictionary
		v.OpenRouterKey = *apiKey
		v.OpenRouterAIModel = *model
	}); err != nil {
		exitErr(err.Error())
	}

	out := map[string]any{}
	before, err := scoring.Rescore(ctx, st)
	if err != nil {
		exitErr(err.Error())
	}
	out["score"] = before
	fmt.Fprintf(os.Stderr, "score: %.1f%% (%d/%d job keywords)\n", before.Score, len(before.Overlap), len(before.JobKeywords))

	if *tune {
		tuner := tuning.NewTuner(openai.NewClient(cfg.LLMAPIURL, cfg.LLMTimeout), st, cfg.TuneFlushInterval)
		res, err := tuner.Tune(ctx, tuning.Request{Instructions: *instructions, NoStream: *noStream}, func(partial string) {
			fmt.Fprintf(os.Stderr, "\rreceived %d chars", len(partial))
		})
		fmt.Fprintln(os.Stderr)
		if err != nil {
			exitErr(fmt.Sprintf("tune: %v", err))
		}
		out["tuned"] = res
		fmt.Fprintf(os.Stderr, "tuned score: %.1f%%\n", res.Score.Score)
		fmt.Println(res.Content)
	}

	if strings.TrimSpace(*outPath) != "" {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			exitErr(fmt.Sprintf("format json: %v", err))
		}
		if err := os.WriteFile(*outPath, data, 0o644); err != nil {
			exitErr(fmt.Sprintf("write output: %v", err))
		}
	}
}

func loadJobDescription(ctx context.Context, path, url string) (string, error) {
	switch {
	case strings.TrimSpace(url) != "":
		md, err := jobfetch.NewFetcher(0).Fetch(ctx, url)
		if err != nil {
			return "", fmt.Errorf("fetch job description: %w", err)
		}
		return md, nil
	case strings.TrimSpace(path) != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read job description: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("one of -jd or -jd-url is required")
	}
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
