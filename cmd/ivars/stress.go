package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/chazu/ivars/vm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type stressConfig struct {
	Strategy string
	Objects  int
	Writers  int
	Growers  int
	Names    int
	Rounds   int
}

// stressReport summarizes one stress run.
type stressReport struct {
	Strategy   string        `json:"strategy" yaml:"strategy"`
	Objects    int           `json:"objects" yaml:"objects"`
	Writers    int           `json:"writers" yaml:"writers"`
	Growers    int           `json:"growers" yaml:"growers"`
	ShapeSize  int           `json:"shape_size" yaml:"shape_size"`
	Writes     int           `json:"writes" yaml:"writes"`
	Lost       int           `json:"lost" yaml:"lost"`
	Identities int           `json:"identities" yaml:"identities"`
	Elapsed    time.Duration `json:"elapsed" yaml:"elapsed"`
	Violations []string      `json:"violations,omitempty" yaml:"violations,omitempty"`
}

func newStressCommand(opts *rootOptions) *cobra.Command {
	cfg := stressConfig{}

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Hammer objects with concurrent writers and shape growth",
		Long: `Run concurrent writers and growers against a set of objects and verify
the storage invariants afterwards: every writer's last write survives, no
index is handed out twice, stamps are stable and identity numbers are unique.

Under the relaxed strategy lost writes are reported but not treated as a
failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := opts.newVM(cfg.Strategy)
			if err != nil {
				return err
			}
			report, err := runStress(cmd.Context(), v, cfg)
			if err != nil {
				return withExit(exitCommandError, err)
			}
			if err := opts.emit(cmd.OutOrStdout(), report, report.writeText); err != nil {
				return err
			}
			if len(report.Violations) > 0 {
				return withExit(exitFailure, fmt.Errorf("%d invariant violations", len(report.Violations)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfg.Strategy, "strategy", "s", "", "stamped|locked|relaxed (default: from config)")
	cmd.Flags().IntVar(&cfg.Objects, "objects", 8, "objects shared by all goroutines")
	cmd.Flags().IntVar(&cfg.Writers, "writers", 8, "goroutines rewriting their own variables")
	cmd.Flags().IntVar(&cfg.Growers, "growers", 4, "goroutines allocating new variables")
	cmd.Flags().IntVar(&cfg.Names, "names", 16, "variables per goroutine")
	cmd.Flags().IntVar(&cfg.Rounds, "rounds", 20, "rewrite rounds per writer")

	return cmd
}

func writerName(w, i int) string { return fmt.Sprintf("@w%d_%d", w, i) }
func growerName(g, i int) string { return fmt.Sprintf("@g%d_%d", g, i) }

// runStress executes one stress run on v and verifies the result.
func runStress(ctx context.Context, v *vm.VM, cfg stressConfig) (*stressReport, error) {
	if cfg.Objects < 1 || cfg.Writers < 0 || cfg.Growers < 0 || cfg.Names < 1 || cfg.Rounds < 1 {
		return nil, fmt.Errorf("stress: objects, names and rounds must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	class := v.DefineClass(fmt.Sprintf("Stress%s", v.Strategy().Kind()))
	shape := class.Redefine()
	objs := make([]*vm.Object, cfg.Objects)
	for i := range objs {
		objs[i] = class.NewInstance()
	}
	ids := make([][]vm.Value, cfg.Writers+cfg.Growers)

	log.Infof("stress: %s strategy, %d objects, %d writers, %d growers", v.Strategy().Kind(), cfg.Objects, cfg.Writers, cfg.Growers)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Writers; w++ {
		w := w
		g.Go(func() error {
			for r := 0; r < cfg.Rounds; r++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for i := 0; i < cfg.Names; i++ {
					a := shape.ForWrite(writerName(w, i))
					for _, obj := range objs {
						a.Set(obj, vm.FromSmallInt(int64(r)))
					}
				}
			}
			ids[w] = identities(v, objs)
			return nil
		})
	}
	for gr := 0; gr < cfg.Growers; gr++ {
		gr := gr
		g.Go(func() error {
			for i := 0; i < cfg.Names; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				a := shape.ForWrite(growerName(gr, i))
				for _, obj := range objs {
					a.Set(obj, vm.FromSmallInt(int64(i)))
				}
			}
			ids[cfg.Writers+gr] = identities(v, objs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &stressReport{
		Strategy:  v.Strategy().Kind().String(),
		Objects:   cfg.Objects,
		Writers:   cfg.Writers,
		Growers:   cfg.Growers,
		ShapeSize: shape.TotalSlotCountWithExtras(),
		Writes:    cfg.Objects * cfg.Names * (cfg.Writers*cfg.Rounds + cfg.Growers),
		Elapsed:   time.Since(start),
	}
	verifyStress(v, shape, objs, ids, cfg, report)
	log.Infof("stress: %s done in %s, %d lost, %d violations", report.Strategy, report.Elapsed, report.Lost, len(report.Violations))
	return report, nil
}

func identities(v *vm.VM, objs []*vm.Object) []vm.Value {
	out := make([]vm.Value, len(objs))
	for i, obj := range objs {
		out[i] = v.IdentityNumber(obj)
	}
	return out
}

func verifyStress(v *vm.VM, shape *vm.Shape, objs []*vm.Object, ids [][]vm.Value, cfg stressConfig, report *stressReport) {
	violate := func(format string, args ...any) {
		report.Violations = append(report.Violations, fmt.Sprintf(format, args...))
	}
	tolerateLoss := v.Strategy().Kind() == vm.StrategyRelaxed

	seen := make(map[int]string)
	for _, a := range shape.Accessors() {
		if prev, dup := seen[a.Index()]; dup {
			violate("index %d bound to %q and %q", a.Index(), prev, a.Name())
		}
		seen[a.Index()] = a.Name()
	}

	check := func(obj int, name string, want vm.Value) {
		a, ok := shape.Lookup(name)
		if !ok {
			violate("%s missing from shape", name)
			return
		}
		if got := a.Get(objs[obj]); got != want {
			report.Lost++
			if !tolerateLoss {
				violate("object %d %s: lost write", obj, name)
			}
		}
	}
	for o := range objs {
		for w := 0; w < cfg.Writers; w++ {
			for i := 0; i < cfg.Names; i++ {
				check(o, writerName(w, i), vm.FromSmallInt(int64(cfg.Rounds-1)))
			}
		}
		for gr := 0; gr < cfg.Growers; gr++ {
			for i := 0; i < cfg.Names; i++ {
				check(o, growerName(gr, i), vm.FromSmallInt(int64(i)))
			}
		}
		if objs[o].Stamp()%2 != 0 {
			violate("object %d: stamp %d left odd", o, objs[o].Stamp())
		}
		if objs[o].TableLen() > shape.TotalSlotCountWithExtras() {
			violate("object %d: table longer than the index space", o)
		}
	}

	unique := make(map[vm.Value]int)
	for o := range objs {
		id := v.IdentityNumber(objs[o])
		for _, got := range ids {
			if got != nil && got[o] != id {
				violate("object %d: identity changed from %v to %v", o, got[o], id)
			}
		}
		if prev, dup := unique[id]; dup {
			violate("objects %d and %d share identity %v", prev, o, id)
		}
		unique[id] = o
	}
	report.Identities = len(unique)
}

func (r *stressReport) writeText(w io.Writer) error {
	fmt.Fprintf(w, "strategy:   %s\n", r.Strategy)
	fmt.Fprintf(w, "objects:    %d (writers %d, growers %d)\n", r.Objects, r.Writers, r.Growers)
	fmt.Fprintf(w, "shape size: %d\n", r.ShapeSize)
	fmt.Fprintf(w, "writes:     %d in %s\n", r.Writes, r.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "lost:       %d\n", r.Lost)
	fmt.Fprintf(w, "identities: %d unique\n", r.Identities)
	if len(r.Violations) == 0 {
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
	for _, v := range r.Violations {
		fmt.Fprintf(w, "violation: %s\n", v)
	}
	_, err := fmt.Fprintf(w, "FAILED (%d violations)\n", len(r.Violations))
	return err
}
