// Package training drives the epoch loop: Huber loss over shuffled training
// batches, AdamW updates, plateau learning-rate decay, best-validation
// snapshotting through an injected callback, and early stopping.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"patch-forecast-lab/internal/checkpoint"
	"patch-forecast-lab/internal/dataset"
	"patch-forecast-lab/internal/nn"
)

var ErrNoTrainingData = errors.New("training split is empty")

// Model is what the trainer needs from the network: a differentiable forward
// pass and the parameter set it updates.
type Model interface {
	Forward(g *nn.Graph, window [][]float64) (*nn.Vector, error)
	Parameters() []nn.Parameter
}

// Config holds the training hyperparameters.
type Config struct {
	Epochs       int     `yaml:"epochs" json:"epochs"`
	BatchSize    int     `yaml:"batch_size" json:"batch_size"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	WeightDecay  float64 `yaml:"weight_decay" json:"weight_decay"`
	GradClip     float64 `yaml:"grad_clip" json:"grad_clip"`
	HuberDelta   float64 `yaml:"huber_delta" json:"huber_delta"`
	Patience     int     `yaml:"patience" json:"patience"`         // early-stop stall budget
	LRPatience   int     `yaml:"lr_patience" json:"lr_patience"`   // plateau stall budget
	LRFactor     float64 `yaml:"lr_factor" json:"lr_factor"`       // multiplier on plateau
	Seed         int64   `yaml:"seed" json:"seed"`                 // shuffle seed
}

// EpochStats is one row of the training history.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
	LR        float64
}

// Result summarizes a completed training run. The model is left holding the
// best-validation parameters, not the last epoch's.
type Result struct {
	BestValLoss float64
	BestEpoch   int
	EpochsRun   int
	History     []EpochStats
}

// Options configures a Trainer. OnImprovement is called with a fresh
// parameter snapshot every time validation loss reaches a new best; it is
// where durable persistence happens, the trainer itself does no file I/O.
type Options struct {
	Model         Model
	Config        Config
	Logger        logrus.FieldLogger
	OnImprovement func(snap *checkpoint.Snapshot) error
}

// Trainer runs the fit loop for one model.
type Trainer struct {
	model         Model
	cfg           Config
	log           logrus.FieldLogger
	onImprovement func(snap *checkpoint.Snapshot) error
}

// New validates the options and builds a trainer.
func New(opts Options) (*Trainer, error) {
	if opts.Model == nil {
		return nil, errors.New("trainer requires a model")
	}
	cfg := opts.Config
	if cfg.Epochs < 1 {
		return nil, fmt.Errorf("epochs must be positive, got %d", cfg.Epochs)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", cfg.LearningRate)
	}
	if cfg.HuberDelta <= 0 {
		cfg.HuberDelta = 1.0
	}
	if cfg.LRFactor <= 0 || cfg.LRFactor >= 1 {
		cfg.LRFactor = 0.5
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Trainer{
		model:         opts.Model,
		cfg:           cfg,
		log:           log,
		onImprovement: opts.OnImprovement,
	}, nil
}

// Fit trains until the epoch budget is spent or validation loss has not
// improved for Patience epochs. An improvement snapshot is forced at epoch 1
// so a best snapshot always exists, even if validation never improves.
// Before returning, the best snapshot is restored into the model.
func (t *Trainer) Fit(ctx context.Context, train, val *dataset.Loader) (*Result, error) {
	if train.Len() == 0 {
		return nil, ErrNoTrainingData
	}

	params := t.model.Parameters()
	opt := nn.NewAdamW(t.cfg.LearningRate, t.cfg.WeightDecay, t.cfg.GradClip)
	sched := &plateauScheduler{factor: t.cfg.LRFactor, patience: t.cfg.LRPatience}
	rng := rand.New(rand.NewSource(t.cfg.Seed))

	res := &Result{BestValLoss: math.Inf(1)}
	var best *checkpoint.Snapshot
	stall := 0

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training canceled: %w", err)
		}

		trainLoss, err := t.runEpoch(train, rng, opt, params)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		valLoss, err := t.meanLoss(val)
		if err != nil {
			return nil, fmt.Errorf("epoch %d validation: %w", epoch, err)
		}

		sched.observe(valLoss, opt)
		res.History = append(res.History, EpochStats{
			Epoch:     epoch,
			TrainLoss: trainLoss,
			ValLoss:   valLoss,
			LR:        opt.LR,
		})
		res.EpochsRun = epoch

		t.log.WithFields(logrus.Fields{
			"epoch":      epoch,
			"train_loss": trainLoss,
			"val_loss":   valLoss,
			"lr":         opt.LR,
		}).Info("epoch finished")

		if epoch == 1 || valLoss < res.BestValLoss {
			if valLoss < res.BestValLoss {
				res.BestValLoss = valLoss
				res.BestEpoch = epoch
			}
			best = checkpoint.Capture(epoch, valLoss, params)
			if t.onImprovement != nil {
				if err := t.onImprovement(best); err != nil {
					return nil, fmt.Errorf("persist improvement at epoch %d: %w", epoch, err)
				}
			}
			stall = 0
			continue
		}

		stall++
		if stall >= t.cfg.Patience && t.cfg.Patience > 0 {
			t.log.WithField("epoch", epoch).Info("early stop: validation loss stalled")
			break
		}
	}

	if err := best.Restore(params); err != nil {
		return nil, fmt.Errorf("restore best snapshot: %w", err)
	}
	return res, nil
}

// runEpoch performs one shuffled pass over the training loader and returns
// the mean per-example loss.
func (t *Trainer) runEpoch(train *dataset.Loader, rng *rand.Rand, opt *nn.AdamW, params []nn.Parameter) (float64, error) {
	train.Shuffle(rng)
	total := 0.0
	count := 0
	for b := 0; b < train.NumBatches(); b++ {
		batch, err := train.Batch(b)
		if err != nil {
			return 0, err
		}

		g := nn.NewGraph()
		losses := make([]*nn.Vector, len(batch))
		for i, ex := range batch {
			out, err := t.model.Forward(g, ex.Input)
			if err != nil {
				return 0, err
			}
			losses[i] = g.HuberLoss(out, ex.Target, t.cfg.HuberDelta)
		}
		loss := g.MeanScalars(losses)
		g.Backward(loss)
		opt.Step(params)

		total += loss.Data[0] * float64(len(batch))
		count += len(batch)
	}
	return total / float64(count), nil
}

// meanLoss computes the mean per-example loss without gradient tracking.
func (t *Trainer) meanLoss(loader *dataset.Loader) (float64, error) {
	if loader.Len() == 0 {
		return 0, errors.New("validation split is empty")
	}
	total := 0.0
	for b := 0; b < loader.NumBatches(); b++ {
		batch, err := loader.Batch(b)
		if err != nil {
			return 0, err
		}
		for _, ex := range batch {
			out, err := t.model.Forward(nil, ex.Input)
			if err != nil {
				return 0, err
			}
			var g *nn.Graph
			total += g.HuberLoss(out, ex.Target, t.cfg.HuberDelta).Data[0]
		}
	}
	return total / float64(loader.Len()), nil
}

// plateauScheduler halves (by factor) the optimizer's learning rate once the
// monitored loss has not improved for patience consecutive observations.
type plateauScheduler struct {
	factor   float64
	patience int

	best  float64
	stall int
	seen  bool
}

func (s *plateauScheduler) observe(loss float64, opt *nn.AdamW) {
	if !s.seen || loss < s.best {
		s.best = loss
		s.stall = 0
		s.seen = true
		return
	}
	s.stall++
	if s.patience > 0 && s.stall >= s.patience {
		opt.LR *= s.factor
		s.stall = 0
	}
}
