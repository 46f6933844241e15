// Train the segmentation network on the VOC training set.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/devanshuDesai/cse252d-sp21-hw3/img"
	"github.com/devanshuDesai/cse252d-sp21-hw3/nnet"
	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
	"github.com/devanshuDesai/cse252d-sp21-hw3/web"
)

func main() {
	log.SetFlags(0)
	conf, err := nnet.ParseFlags(os.Args[1:], os.Stderr)
	if err == flag.ErrHelp {
		os.Exit(0)
	}
	nnet.CheckErr(err)
	fmt.Println(conf)

	cmap := img.VOCColormap(conf.NumClasses)
	if conf.Colormap != "" {
		cmap, err = img.LoadColormap(conf.Colormap)
		nnet.CheckErr(err)
	}
	nnet.CheckErr(nnet.Setup(conf))

	dev := num.NewDevice(!conf.NoCuda, conf.GpuID)
	rng := nnet.SetSeed(conf.RandSeed)

	net := nnet.NewNet(nnet.VariantOf(conf), conf.NumClasses, rng)
	n, err := net.LoadPretrained(conf.Pretrained)
	nnet.CheckErr(err)
	if conf.Pretrained != "" {
		fmt.Printf("loaded %d encoder parameters from %s\n", n, conf.Pretrained)
	}
	fmt.Println(net)
	if conf.DebugLevel >= 2 {
		net.PrintWeights()
	}

	data, err := img.NewSegData(conf.ImageRoot, conf.LabelRoot, conf.FileList, conf.NumClasses, conf.ImWidth, conf.ImHeight)
	nnet.CheckErr(err)
	fmt.Println(data)
	loader := nnet.NewDataset(data, conf.BatchSize, conf.Workers, true, rng)
	defer loader.Release()

	out := nnet.FileOutput{Dir: conf.Experiment, Colormap: cmap, Plot: true}
	trainer := nnet.NewTrainer(conf, net, loader, dev, out)
	fmt.Println(trainer.Opt)

	if conf.Listen != "" {
		srv, err := web.NewServer(conf)
		nnet.CheckErr(err)
		trainer.Monitor = srv
		go func() {
			log.Println(srv.ListenAndServe(conf.Listen))
		}()
	}
	nnet.CheckErr(trainer.Train())
}
