package workflow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"collage/internal/artifact"
	"collage/internal/fileutil"
	"collage/internal/imaging"
	"collage/internal/logging"
	"collage/internal/queue"
	"collage/internal/services"
)

// Outcome is the terminal result of running one job.
type Outcome struct {
	JobID        string
	State        queue.State
	ResultRef    string
	ArtifactPath string
	Err          error
	Duration     time.Duration
}

// Message is the human-readable failure cause recorded on the job.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Processor renders a single job into its artifact.
type Processor struct {
	artifacts         *artifact.Store
	logger            *slog.Logger
	decoder           imaging.Decoder
	decodeConcurrency int
}

// NewProcessor constructs a processor writing into artifacts.
func NewProcessor(artifacts *artifact.Store, logger *slog.Logger, decoder imaging.Decoder, decodeConcurrency int) *Processor {
	if decodeConcurrency <= 0 {
		decodeConcurrency = 1
	}
	return &Processor{
		artifacts:         artifacts,
		logger:            logging.NewComponentLogger(logger, "processor"),
		decoder:           decoder,
		decodeConcurrency: decodeConcurrency,
	}
}

// Run decodes, normalizes, composes, and persists job. It never panics: any
// failure, including a recovered panic, is returned as a FAILED outcome.
// Inputs are left in place; see ReleaseInputs.
func (p *Processor) Run(ctx context.Context, job *queue.Job) (outcome Outcome) {
	started := time.Now()
	outcome = Outcome{JobID: job.ID}
	logger := logging.WithContext(ctx, p.logger)

	defer func() {
		if r := recover(); r != nil {
			outcome.State = queue.StateFailed
			outcome.ResultRef = ""
			outcome.Err = services.Wrap(services.ErrRender, "worker", "run", fmt.Sprintf("panic: %v", r), nil)
		}
		outcome.Duration = time.Since(started)
	}()

	path, err := p.render(ctx, logger, job)
	if err != nil {
		outcome.State = queue.StateFailed
		outcome.Err = err
		return outcome
	}

	outcome.State = queue.StateCompleted
	outcome.ResultRef = job.ID
	outcome.ArtifactPath = path
	return outcome
}

func (p *Processor) render(ctx context.Context, logger *slog.Logger, job *queue.Job) (string, error) {
	if len(job.Inputs) == 0 {
		return "", services.Wrap(services.ErrValidation, "worker", "validate job", "job has no input images", nil)
	}
	if err := job.Spec().Validate(); err != nil {
		return "", err
	}

	images, err := p.decodeAll(ctx, job.Inputs)
	if err != nil {
		return "", err
	}

	layout := toImagingLayout(job.Layout)
	normalized, err := imaging.Normalize(images, layout.NormalizeAxis())
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	canvasImage, canvas := imaging.Compose(normalized, layout, job.BorderWidth, job.BorderColor)
	logger.Debug("canvas composed",
		logging.Int("width", canvas.Width),
		logging.Int("height", canvas.Height),
		logging.Int("images", len(canvas.Placements)),
		logging.String("layout", layout.String()),
	)

	path, err := p.artifacts.Write(ctx, job.ID, func(w io.Writer) error {
		return imaging.EncodePNG(w, canvasImage)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (p *Processor) decodeAll(ctx context.Context, inputs []queue.Input) ([]image.Image, error) {
	images := make([]image.Image, len(inputs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.decodeConcurrency)
	for idx, in := range inputs {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			img, err := p.decodeInput(in)
			if err != nil {
				return fmt.Errorf("input %d (%s): %w", idx, in.Label(), err)
			}
			images[idx] = img
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func (p *Processor) decodeInput(in queue.Input) (image.Image, error) {
	if len(in.Data) > 0 {
		return p.decoder.DecodeBytes(in.Data)
	}
	return p.decoder.DecodeFile(in.Path)
}

// ReleaseInputs removes the temporary upload files of a job whose completion
// has been recorded. Jobs without CleanupInputs are left alone. Failures are
// logged only.
func (p *Processor) ReleaseInputs(ctx context.Context, job *queue.Job) {
	if !job.CleanupInputs {
		return
	}
	logger := logging.WithContext(ctx, p.logger)
	for _, in := range job.Inputs {
		if in.Path == "" {
			continue
		}
		if err := fileutil.RemoveIfExists(in.Path); err != nil {
			logging.WarnWithContext(logger, "failed to delete temporary input", "input_cleanup_failed",
				logging.String("path", in.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check upload directory permissions"),
				logging.String(logging.FieldImpact, "temporary upload left on disk"),
			)
			continue
		}
		logger.Debug("deleted temporary input", logging.String("path", in.Path))
	}
}

func toImagingLayout(layout queue.Layout) imaging.Layout {
	if layout == queue.LayoutVertical {
		return imaging.Vertical
	}
	return imaging.Horizontal
}

// interrupted reports whether err came from shutdown rather than the job itself.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
