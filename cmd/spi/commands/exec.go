package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/ocr4all/spi/pkg/core"
	"github.com/ocr4all/spi/pkg/env"
	"github.com/ocr4all/spi/pkg/mets"
	"github.com/ocr4all/spi/pkg/model"
	"github.com/ocr4all/spi/pkg/stores"
)

func newExecCommand() *cobra.Command {
	var (
		sandbox   string
		snapshots string
		metsFile  string
		group     string
		input     string
		output    string
		outputDir string
		user      string
		arguments []string
	)

	cmd := &cobra.Command{
		Use:   "exec <provider>",
		Short: "Run a processor against a sandbox snapshot",
		Long: `Run the processor of a provider against a workflow sandbox. The input and
output snapshots are given as mets file groups. The cumulative output of the
processor is printed while it runs and the execution is archived.`,
		Example: `  # Recognize snapshot 1 into the new snapshot 1-2
  spi exec ocrd-tesserocr --sandbox /srv/ocr4all/sandbox \
    --input OCR-D-1 --output OCR-D-1-2 --arg model=frak2021`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			codec := mets.NewFileGroup(group)
			inputTrack, err := codec.Decode(input)
			if err != nil {
				return fmt.Errorf("invalid input file group: %w", err)
			}
			outputTrack, err := codec.Decode(output)
			if err != nil {
				return fmt.Errorf("invalid output file group: %w", err)
			}

			if snapshots == "" {
				snapshots = filepath.Join(sandbox, "snapshots")
			}
			if outputDir == "" {
				outputDir = trackDirectory(snapshots, outputTrack)
			}

			h, err := openHost(ctx, true)
			if err != nil {
				return err
			}
			defer h.close(ctx)

			provider, err := h.registry.GetProcess(id)
			if err != nil {
				return err
			}
			if provider.Status() != core.StatusActive {
				return fmt.Errorf("provider %s is %s", id, provider.Status())
			}

			fw := &env.Framework{
				OperatingSystem: env.CurrentOperatingSystem(),
				UID:             -1,
				GID:             -1,
				Application:     &env.Application{Label: "spi", Name: "spi", DateLayout: time.RFC3339},
				User:            user,
				Configuration:   provider.Configuration(),
				Target: &env.Target{
					Sandbox: &env.Sandbox{
						Root:          sandbox,
						Snapshots:     snapshots,
						Launched:      true,
						SnapshotTrack: inputTrack,
						Mets:          &env.Mets{File: metsFile, Group: group},
					},
				},
				Output:        outputDir,
				SnapshotTrack: outputTrack,
				Temporary:     os.TempDir(),
			}

			premise := provider.Premise(fw.Target)
			if premise.State() == env.PremiseBlock {
				return fmt.Errorf("provider %s cannot run: %s", id, premise.Message(language.English))
			}
			if premise.State() != env.PremiseRelease {
				log.Warn().Str("premise", string(premise.State())).Msg(premise.Message(language.English))
			}

			m, err := provider.Model(fw.Target)
			if err != nil {
				return err
			}
			bag, err := parseArguments(m, arguments)
			if err != nil {
				return err
			}

			execution := h.telemetry.StartExecution(ctx, id)
			record := &stores.Execution{
				ID:        execution.ID,
				Provider:  id,
				Arguments: bag.String(),
				StartedAt: time.Now(),
			}
			if user != "" {
				record.User = &user
			}
			recorder, err := stores.NewExecutionRecorder(execution.Ctx, h.store, record, newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()))
			if err != nil {
				execution.End(core.StateInterrupted)
				return err
			}

			processor := provider.NewProcessor()
			state := processor.Execute(execution.Ctx, recorder, fw, bag)

			var exitCode *int
			if p, ok := processor.(interface{ ExitCode() *int }); ok {
				exitCode = p.ExitCode()
			}
			if err := recorder.Finish(state, exitCode); err != nil {
				log.Warn().Err(err).Msg("Failed to archive execution")
			}
			execution.End(state)

			fmt.Fprintf(cmd.ErrOrStderr(), "execution %s %s\n", execution.ID, state)
			if state != core.StateCompleted {
				return fmt.Errorf("execution %s", state)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sandbox, "sandbox", ".", "sandbox root directory")
	cmd.Flags().StringVar(&snapshots, "snapshots", "", "snapshots directory (default <sandbox>/snapshots)")
	cmd.Flags().StringVar(&metsFile, "mets", "mets.xml", "mets file in the snapshots directory")
	cmd.Flags().StringVar(&group, "group", "OCR-D", "mets file group prefix")
	cmd.Flags().StringVar(&input, "input", "OCR-D", "input file group")
	cmd.Flags().StringVar(&output, "output", "OCR-D-1", "output file group")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "output snapshot directory (default derived from the output track)")
	cmd.Flags().StringVar(&user, "user", "", "user launching the processor")
	cmd.Flags().StringArrayVarP(&arguments, "arg", "a", nil, "processor argument as name=value, repeatable")

	return cmd
}

// trackDirectory nests a directory per track id below the snapshots.
func trackDirectory(snapshots string, track mets.Track) string {
	parts := []string{snapshots}
	for _, id := range track {
		parts = append(parts, strconv.Itoa(id))
	}
	return filepath.Join(parts...)
}

// parseArguments converts name=value pairs to the kinds of the model
// fields. Names without a field are strings.
func parseArguments(m *model.Model, pairs []string) (*model.ModelArgument, error) {
	kinds := make(map[string]model.Kind)
	if m != nil {
		for _, f := range m.Fields() {
			kinds[f.Argument()] = f.Kind()
		}
	}

	args := make([]model.Argument, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid argument %q, want name=value", pair)
		}

		switch kind := kinds[name]; kind {
		case model.KindInteger:
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", name, err)
			}
			args = append(args, model.IntegerArgument(name, v))
		case model.KindDecimal:
			v, err := strconv.ParseFloat(value, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", name, err)
			}
			args = append(args, model.DecimalArgument(name, float32(v)))
		case model.KindBoolean:
			v, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", name, err)
			}
			args = append(args, model.BooleanArgument(name, v))
		case model.KindSelect, model.KindRecognitionModel:
			values := strings.Split(value, ",")
			if kind == model.KindSelect {
				args = append(args, model.SelectArgument(name, values))
			} else {
				args = append(args, model.RecognitionModelArgument(name, values))
			}
		case model.KindImage:
			var ids []int
			for _, s := range strings.Split(value, ",") {
				id, err := strconv.Atoi(strings.TrimSpace(s))
				if err != nil {
					return nil, fmt.Errorf("argument %s: %w", name, err)
				}
				ids = append(ids, id)
			}
			args = append(args, model.ImageArgument(name, ids))
		default:
			args = append(args, model.StringArgument(name, value))
		}
	}
	return model.NewModelArgument(args...)
}

// printer writes the increments of the cumulative processor output.
type printer struct {
	mu               sync.Mutex
	stdout, stderr   io.Writer
	outSeen, errSeen int
}

func newPrinter(stdout, stderr io.Writer) *printer {
	return &printer{stdout: stdout, stderr: stderr}
}

func (p *printer) UpdatedProgress(progress float32) {
	log.Debug().Float32("progress", progress).Msg("Progress")
}

func (p *printer) UpdatedStandardOutput(output string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outSeen = writeIncrement(p.stdout, output, p.outSeen)
}

func (p *printer) UpdatedStandardError(output string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errSeen = writeIncrement(p.stderr, output, p.errSeen)
}

func (p *printer) LockSnapshot(comment string) {
	log.Info().Str("comment", comment).Msg("Snapshot locked")
}

func writeIncrement(w io.Writer, output string, seen int) int {
	if len(output) < seen {
		seen = 0
	}
	_, _ = io.WriteString(w, output[seen:])
	return len(output)
}
