package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/promptlens/internal/prompts"
	"github.com/haasonsaas/promptlens/pkg/models"
)

func runPromptRender(cmd *cobra.Command, tf templateFlags) error {
	tmpl, err := tf.build(cmd.InOrStdin())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), prompts.Render(tmpl))
	return nil
}

func runPromptTokens(cmd *cobra.Command, file string, args []string) error {
	text := strings.Join(args, " ")
	if file != "" {
		data, err := readInput(cmd.InOrStdin(), file)
		if err != nil {
			return err
		}
		text = data
	}
	fmt.Fprintln(cmd.OutOrStdout(), prompts.EstimateTokens(text))
	return nil
}

func runPromptTest(cmd *cobra.Command, opts promptTestOptions) error {
	tmpl, err := opts.build(cmd.InOrStdin())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	c, err := newClient(cfg, newLogger(cfg), opts.baseURL, opts.apiKey)
	if err != nil {
		return err
	}

	testCfg := models.PromptTestConfig{
		Name:        opts.name,
		Description: opts.description,
		Tags:        opts.tags,
	}
	for _, v := range opts.contains {
		testCfg.Expectations = append(testCfg.Expectations, models.PromptExpectation{Type: models.ExpectContains, Value: v})
	}
	for _, v := range opts.notContains {
		testCfg.Expectations = append(testCfg.Expectations, models.PromptExpectation{Type: models.ExpectNotContains, Value: v})
	}
	for _, v := range opts.regex {
		testCfg.Expectations = append(testCfg.Expectations, models.PromptExpectation{Type: models.ExpectRegex, Value: v})
	}

	result := c.TestPrompt(cmd.Context(), tmpl, testCfg)
	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		if err := writeJSONOut(out, result); err != nil {
			return err
		}
	} else {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(out, "%s (%dms)\n", status, result.ExecutionTimeMs)
		if result.Error != "" {
			fmt.Fprintf(out, "error: %s\n", result.Error)
		}
		for i, er := range result.ExpectationResults {
			mark := "ok"
			if !er.Passed {
				mark = "failed"
			}
			label := er.Description
			if label == "" {
				label = fmt.Sprintf("expectation %d", i+1)
			}
			fmt.Fprintf(out, "  [%s] %s\n", mark, label)
			if er.Error != "" {
				fmt.Fprintf(out, "         %s\n", er.Error)
			}
		}
	}
	if !result.Passed {
		return fmt.Errorf("prompt test failed")
	}
	return nil
}

func runPromptABTest(cmd *cobra.Command, opts abTestOptions) error {
	vars, err := parseVars(opts.vars)
	if err != nil {
		return err
	}
	criteria, err := parseCriteria(opts.criteria)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	c, err := newClient(cfg, newLogger(cfg), opts.baseURL, opts.apiKey)
	if err != nil {
		return err
	}

	result, err := c.RunABTest(cmd.Context(), models.ABTestConfig{
		Name:               opts.name,
		Description:        opts.description,
		VariantA:           models.PromptTemplate{Content: opts.variantA, Variables: vars},
		VariantB:           models.PromptTemplate{Content: opts.variantB, Variables: vars},
		EvaluationCriteria: criteria,
	})
	if err != nil {
		return fmt.Errorf("A/B test failed: %s", prompts.ParseAPIError(err))
	}
	return writeJSONOut(cmd.OutOrStdout(), result)
}

func runPromptLog(cmd *cobra.Command, opts promptLogOptions) error {
	meta, err := parseVars(opts.metadata)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	c, err := newClient(cfg, newLogger(cfg), opts.baseURL, opts.apiKey)
	if err != nil {
		return err
	}
	if err := c.LogPrompt(cmd.Context(), opts.prompt, opts.response, meta); err != nil {
		return fmt.Errorf("log prompt: %s", prompts.ParseAPIError(err))
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged.")
	return nil
}

func (f templateFlags) build(stdin io.Reader) (models.PromptTemplate, error) {
	content := f.template
	if f.file != "" {
		data, err := readInput(stdin, f.file)
		if err != nil {
			return models.PromptTemplate{}, err
		}
		content = data
	}
	if strings.TrimSpace(content) == "" {
		return models.PromptTemplate{}, fmt.Errorf("a template is required (--template or --file)")
	}
	vars, err := parseVars(f.vars)
	if err != nil {
		return models.PromptTemplate{}, err
	}
	return models.PromptTemplate{Content: content, Variables: vars}, nil
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func parseVars(items []string) (map[string]any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(items))
	for _, item := range items {
		key, value, err := parseKeyValue(item)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func parseKeyValue(item string) (string, string, error) {
	key, value, ok := strings.Cut(item, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", item)
	}
	return key, value, nil
}

func parseCriteria(items []string) ([]models.EvaluationCriterion, error) {
	out := make([]models.EvaluationCriterion, 0, len(items))
	for _, item := range items {
		name, weightRaw, hasWeight := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("criterion name is required in %q", item)
		}
		c := models.EvaluationCriterion{Name: name}
		if hasWeight {
			w, err := strconv.ParseFloat(strings.TrimSpace(weightRaw), 64)
			if err != nil || w < 0 {
				return nil, fmt.Errorf("invalid weight in criterion %q", item)
			}
			c.Weight = w
		}
		out = append(out, c)
	}
	return out, nil
}
