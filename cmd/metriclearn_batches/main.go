// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// metriclearn_batches inspects the balanced batches and the mined pairs or triplets of a labeled image dataset.
//
// The dataset is either a CSV file listing image paths and labels (-csv), or MNIST (-mnist):
//
//	metriclearn_batches -csv cars.csv -base ~/data/cars -classes 8 -samples 4 -mine triplets -show 3
//	metriclearn_batches -mnist ~/tmp/mnist -download -mode test -mine pairs -eval -load -parallel
//
// It runs one full pass of the balanced sampler, and reports how often each class was sampled.
// With -load it also loads and converts every mined example of the pass.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"path"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/metriclearn/pkg/ml/datasets"
	"github.com/gomlx/metriclearn/pkg/ml/datasets/mining"
	"github.com/gomlx/metriclearn/pkg/ml/datasets/mnist"
	"github.com/gomlx/metriclearn/pkg/ml/datasets/pairing"
	"github.com/gomlx/metriclearn/pkg/ml/datasets/sampler"
	"github.com/gomlx/metriclearn/pkg/ml/datasets/transforms"
	"github.com/gomlx/metriclearn/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagCSV        = flag.String("csv", "", "CSV file listing the images (with a header). If empty, MNIST is used.")
	flagTrainModel = flag.Bool("train_model", false, "Train on the car model instead of the make (-csv only).")
	flagLabel      = flag.String("label", "", "Label column of the CSV file, overrides the -train_model default.")
	flagAux        = flag.String("aux", "", "Auxiliary label column of the CSV file, overrides the -train_model default.")
	flagPath       = flag.String("path", "path", "Image path column of the CSV file.")
	flagBase       = flag.String("base", "", "Base directory of relative image paths. Defaults to the CSV directory.")
	flagSize       = flag.Int("size", 224, "Images of the CSV file are resized to size x size when loaded.")

	flagMNIST    = flag.String("mnist", "~/tmp/mnist", "Directory with the MNIST files.")
	flagDownload = flag.Bool("download", false, "Download MNIST files, if missing.")
	flagMode     = flag.String("mode", "train", "MNIST split: train or test.")

	flagClasses  = flag.Int("classes", 10, "Number of classes per batch.")
	flagSamples  = flag.Int("samples", 4, "Number of examples per class in each batch.")
	flagSeed     = flag.Uint64("seed", 0, "Seed for the sampler and online mining. If 0, a seed is taken from the clock.")
	flagMine     = flag.String("mine", "none", "Mining of the batches examples: none, pairs or triplets.")
	flagEval     = flag.Bool("eval", false, "Use fixed (evaluation) pairs/triplets, seeded with -seed or the default seed.")
	flagShow     = flag.Int("show", 2, "Number of batches to show.")
	flagLoad     = flag.Bool("load", false, "Load and convert every mined example of the pass.")
	flagParallel = flag.Bool("parallel", false, "Load examples in parallel (with -load).")
	flagRebatch  = flag.Int("rebatch", 0, "If > 0, loaded examples are re-batched to this size (with -load).")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	err := exceptions.TryCatch[error](func() {
		src, transform := loadSource()
		s := must.M1(sampler.New(src, *flagClasses, *flagSamples))
		if *flagSeed != 0 {
			s.WithSeed(*flagSeed)
		}
		reportPass(src, s)
		switch *flagMine {
		case "none":
		case "pairs":
			siamese := must.M1(pairing.NewSiamese(src, transform, config("pairs")))
			reportMined(s, siamese.Len(), func(i int) []string {
				pair := must.M1(siamese.Indices(i))
				return []string{strconv.Itoa(pair.Anchor), strconv.Itoa(pair.Partner), targetName(pair.Target)}
			}, []string{"anchor", "partner", "target"})
			if *flagLoad {
				loadAll(s, siamese.Len(), siamese.Get)
			}
		case "triplets":
			triplet := must.M1(pairing.NewTriplet(src, transform, config("triplets")))
			reportMined(s, triplet.Len(), func(i int) []string {
				t := must.M1(triplet.Indices(i))
				return []string{strconv.Itoa(t.Anchor), strconv.Itoa(t.Positive), strconv.Itoa(t.Negative)}
			}, []string{"anchor", "positive", "negative"})
			if *flagLoad {
				loadAll(s, triplet.Len(), triplet.Get)
			}
		default:
			exceptions.Panicf("unknown -mine=%q, valid values are none, pairs or triplets", *flagMine)
		}
	})
	if err != nil {
		klog.Exitf("Error:\n%+v", err)
	}
}

// loadSource returns the source selected by the flags, and the transform used to load its images.
func loadSource() (pairing.Source, pairing.Transform[*transforms.Float32Image]) {
	if *flagCSV == "" {
		if *flagDownload {
			must.M(mnist.Download(context.Background(), *flagMNIST, true))
		}
		src := must.M1(mnist.Load(*flagMNIST, mnist.Mode(*flagMode)))
		return src, transforms.ToFloat32(transforms.MNISTNormalization)
	}

	columns := pairing.MakeColumns
	if *flagTrainModel {
		columns = pairing.ModelColumns
	}
	columns.Path = *flagPath
	if *flagLabel != "" {
		columns.Label = *flagLabel
	}
	if *flagAux != "" {
		columns.Aux = *flagAux
	}
	baseDir := *flagBase
	if baseDir == "" {
		baseDir = path.Dir(*flagCSV)
	}
	df := must.M1(pairing.ReadCSV(*flagCSV))
	src := must.M1(pairing.NewPathSource(df, columns, baseDir))
	return src, transforms.Pipeline(transforms.ToFloat32(transforms.ImageNetNormalization),
		transforms.Resize(*flagSize, *flagSize))
}

func config(name string) pairing.Config {
	cfg := pairing.Config{Train: !*flagEval, Seed: *flagSeed, Name: name}
	if cfg.Train && *flagSeed != 0 {
		cfg.Rand = rand.New(rand.NewPCG(*flagSeed, *flagSeed+1))
	}
	return cfg
}

func targetName(target int) string {
	if target == mining.TargetPositive {
		return "positive"
	}
	return "negative"
}

// reportPass runs one full pass of the sampler, and prints how often each class was sampled.
func reportPass(src pairing.Source, s *sampler.BalancedBatchSampler) {
	index := s.Index()
	fmt.Println(titleStyle.Render("Balanced sampler"))
	summary := newPlainTable(false, alignRight, alignLeft)
	summary.Row("examples", humanize.Comma(int64(index.Len())))
	summary.Row("labels", humanize.Comma(int64(index.NumLabels())))
	summary.Row("batch size", fmt.Sprintf("%d classes x %d samples = %d", s.NumClasses(), s.NumSamples(), s.BatchSize()))
	summary.Row("batches per pass", humanize.Comma(int64(s.Len())))
	fmt.Println(summary.Render())

	sampled := make(map[int]int, index.NumLabels())
	shown := newPlainTable(true, alignRight, alignLeft, alignLeft)
	shown.Headers("batch", "labels", "indices")
	bar := progressbar.Default(int64(s.Len()), "sampling")
	var batchIdx int
	for batch := range s.All() {
		for _, idx := range batch {
			sampled[src.Label(idx)]++
		}
		if batchIdx < *flagShow {
			batchLabels := xslices.Map(batch, func(idx int) int { return src.Label(idx) })
			shown.Row(strconv.Itoa(batchIdx), formatInts(batchLabels), formatInts(batch))
		}
		batchIdx++
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Println()
	if *flagShow > 0 {
		fmt.Println(shown.Render())
	}

	perClass := newPlainTable(true, alignRight)
	perClass.Headers("label", "examples", "sampled", "ratio")
	for _, label := range index.Labels() {
		count := index.Count(label)
		perClass.Row(strconv.Itoa(label), humanize.Comma(int64(count)), humanize.Comma(int64(sampled[label])),
			fmt.Sprintf("%.2f", float64(sampled[label])/float64(count)))
	}
	fmt.Println(perClass.Render())
}

// reportMined prints the mined tuples of the first batches: of the first sampler batches in training mode,
// or the first fixed tuples in evaluation mode.
func reportMined(s *sampler.BalancedBatchSampler, size int, row func(i int) []string, headers []string) {
	var indices []int
	if *flagEval {
		indices = xslices.Iota(0, min(size, *flagShow*s.BatchSize()))
	} else {
		for batch := range s.All() {
			if len(indices) >= *flagShow*s.BatchSize() {
				break
			}
			indices = append(indices, batch...)
		}
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("Mined %s (%s examples)", *flagMine, humanize.Comma(int64(size)))))
	table := newPlainTable(true, alignRight)
	table.Headers(append([]string{"#"}, headers...)...)
	for _, i := range indices {
		table.Row(append([]string{strconv.Itoa(i)}, row(i)...)...)
	}
	fmt.Println(table.Render())
}

// loadAll loads every example of one pass: balanced batches in training mode, sequential batches otherwise.
func loadAll[E any](s *sampler.BalancedBatchSampler, size int, get datasets.Getter[E]) {
	var indices datasets.Dataset[[]int]
	if *flagEval {
		indices = datasets.Sequential("eval", size, s.BatchSize(), false)
	} else {
		indices = sampler.NewDataset("train", s)
	}
	var ds datasets.Dataset[[]E] = datasets.Gather("load", indices, get)
	if *flagParallel {
		pds := datasets.Parallel(ds)
		defer pds.Done()
		ds = pds
	}
	numBatches := s.Len()
	if *flagEval {
		numBatches = (size + s.BatchSize() - 1) / s.BatchSize()
	}
	if *flagRebatch > 0 {
		total := numBatches * s.BatchSize()
		if *flagEval {
			total = size
		}
		ds = datasets.Batch(ds, *flagRebatch, false)
		numBatches = (total + *flagRebatch - 1) / *flagRebatch
	}
	bar := progressbar.Default(int64(numBatches), "loading")
	var count int
	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			panic(errors.WithMessage(err, "failed to load examples"))
		}
		count += len(batch)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Println()
	klog.Infof("Loaded %s examples", humanize.Comma(int64(count)))
}

func formatInts(values []int) string {
	if len(values) > 16 {
		values = values[:16]
		return strings.Trim(fmt.Sprint(values), "[]") + " ..."
	}
	return strings.Trim(fmt.Sprint(values), "[]")
}
