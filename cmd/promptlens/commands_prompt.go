package main

import (
	"github.com/spf13/cobra"
)

// buildPromptCmd creates the "prompt" command group.
func buildPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Render, test, and log prompts",
	}
	cmd.AddCommand(
		buildPromptRenderCmd(),
		buildPromptTokensCmd(),
		buildPromptTestCmd(),
		buildPromptABTestCmd(),
		buildPromptLogCmd(),
	)
	return cmd
}

type templateFlags struct {
	template string
	file     string
	vars     []string
}

func (f *templateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.template, "template", "t", "", "Prompt template text")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read the template from a file (- for stdin)")
	cmd.Flags().StringArrayVar(&f.vars, "var", nil, "Template variable as name=value (repeatable)")
}

func buildPromptRenderCmd() *cobra.Command {
	var tf templateFlags
	cmd := &cobra.Command{
		Use:     "render",
		Short:   "Substitute {{name}} placeholders in a template",
		Example: `  promptlens prompt render -t "Hello {{name}}" --var name=Ada`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPromptRender(cmd, tf)
		},
	}
	tf.register(cmd)
	return cmd
}

func buildPromptTokensCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "tokens [text...]",
		Short: "Estimate the token count of text",
		Long: `Estimate the token count of text as words x 1.3, rounded up.
This is a rough heuristic, not a tokenizer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPromptTokens(cmd, file, args)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read text from a file (- for stdin)")
	return cmd
}

type promptTestOptions struct {
	templateFlags
	name        string
	description string
	tags        []string
	contains    []string
	notContains []string
	regex       []string
	jsonOutput  bool
	baseURL     string
	apiKey      string
}

func buildPromptTestCmd() *cobra.Command {
	var opts promptTestOptions
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a prompt test on the PromptLens API",
		Example: `  promptlens prompt test -t "Greet {{name}}" --var name=Ada \
    --name greeting --expect-contains Ada --expect-not-contains sorry`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPromptTest(cmd, opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.name, "name", "", "Test name")
	cmd.Flags().StringVar(&opts.description, "description", "", "Test description")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringArrayVar(&opts.contains, "expect-contains", nil, "Response must contain this text (repeatable)")
	cmd.Flags().StringArrayVar(&opts.notContains, "expect-not-contains", nil, "Response must not contain this text (repeatable)")
	cmd.Flags().StringArrayVar(&opts.regex, "expect-regex", nil, "Response must match this pattern (repeatable)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print JSON")
	registerAPIFlags(cmd, &opts.baseURL, &opts.apiKey)
	return cmd
}

type abTestOptions struct {
	name        string
	description string
	variantA    string
	variantB    string
	vars        []string
	criteria    []string
	baseURL     string
	apiKey      string
}

func buildPromptABTestCmd() *cobra.Command {
	var opts abTestOptions
	cmd := &cobra.Command{
		Use:   "ab-test",
		Short: "Compare two prompt templates on the PromptLens API",
		Example: `  promptlens prompt ab-test --name tone -a "Answer formally: {{q}}" -b "Answer casually: {{q}}" \
    --var q="What is Go?" --criterion clarity=0.7 --criterion brevity=0.3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPromptABTest(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "Test name")
	cmd.Flags().StringVar(&opts.description, "description", "", "Test description")
	cmd.Flags().StringVarP(&opts.variantA, "variant-a", "a", "", "Template for variant A")
	cmd.Flags().StringVarP(&opts.variantB, "variant-b", "b", "", "Template for variant B")
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "Variable for both templates as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.criteria, "criterion", nil, "Evaluation criterion as name or name=weight (repeatable)")
	registerAPIFlags(cmd, &opts.baseURL, &opts.apiKey)
	_ = cmd.MarkFlagRequired("variant-a")
	_ = cmd.MarkFlagRequired("variant-b")
	return cmd
}

type promptLogOptions struct {
	prompt   string
	response string
	metadata []string
	baseURL  string
	apiKey   string
}

func buildPromptLogCmd() *cobra.Command {
	var opts promptLogOptions
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log a prompt and its response to the PromptLens API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPromptLog(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Prompt text")
	cmd.Flags().StringVar(&opts.response, "response", "", "Model response")
	cmd.Flags().StringArrayVar(&opts.metadata, "meta", nil, "Metadata as key=value (repeatable)")
	registerAPIFlags(cmd, &opts.baseURL, &opts.apiKey)
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func registerAPIFlags(cmd *cobra.Command, baseURL, apiKey *string) {
	cmd.Flags().StringVar(baseURL, "url", "", "API base URL (default: base_url from config)")
	cmd.Flags().StringVar(apiKey, "api-key", "", "API key (default: api_key from config)")
}
