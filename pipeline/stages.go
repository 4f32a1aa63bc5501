package pipeline

import (
	"fmt"
	"log"
	"time"

	"coinforecast/models"
	"coinforecast/services/export"
	"coinforecast/services/marketdata"
	"coinforecast/services/modelstore"
	"coinforecast/services/preprocess"
	"coinforecast/services/training"
)

// runFetch syncs hourly candles for the pair into the primary store
func (r *Runner) runFetch(pctx *Context) error {
	inserted, err := r.candles.SyncPair(pctx.Pair.Symbol(), r.fetchHrs)
	if err != nil {
		return fmt.Errorf("fetching failed: %w", err)
	}

	log.Printf("[%s] fetched candles, %d new", pctx.Pair.Symbol(), inserted)
	return nil
}

// runPreprocess derives feature rows from stored candles, caches them in
// the dataset store and windows them into train/val/test sequences
func (r *Runner) runPreprocess(pctx *Context) error {
	symbol := pctx.Pair.Symbol()

	candles, err := r.candles.LatestCandles(pctx.Pair.ID, r.fetchHrs)
	if err != nil {
		return fmt.Errorf("failed to load candles: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles stored for %s", symbol)
	}

	pctx.FeatureRows = preprocess.BuildFeatures(CandlesToBars(candles))

	if err := r.datasets.SaveFeatures(symbol, pctx.FeatureRows); err != nil {
		log.Printf("Warning: failed to cache features for %s: %v", symbol, err)
	}

	return r.prepareSequences(pctx)
}

// prepareSequences splits, scales and windows the feature rows
func (r *Runner) prepareSequences(pctx *Context) error {
	cfg := r.trainConf(pctx.Pair.Symbol())

	train, val, test, scaler, err := preprocess.Prepare(
		pctx.FeatureRows, cfg.WindowSize, TrainFraction, ValFraction)
	if err != nil {
		return fmt.Errorf("preprocessing failed: %w", err)
	}

	pctx.Train = train
	pctx.Val = val
	pctx.Test = test
	pctx.Scaler = scaler

	log.Printf("[%s] sequences prepared: train=%d val=%d test=%d",
		pctx.Pair.Symbol(), len(train), len(val), len(test))
	return nil
}

// runTrain trains the network. When the stage runs standalone, features are
// read back from the dataset cache instead of re-deriving them.
func (r *Runner) runTrain(pctx *Context) error {
	symbol := pctx.Pair.Symbol()

	if pctx.Train == nil {
		if pctx.FeatureRows == nil {
			rows, err := r.datasets.LoadFeatures(symbol)
			if err != nil {
				return fmt.Errorf("failed to load cached features: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("no cached features for %s, run %s first", symbol, StagePreprocessing)
			}
			pctx.FeatureRows = rows
		}
		if err := r.prepareSequences(pctx); err != nil {
			return err
		}
	}

	cfg := r.trainConf(symbol)
	net, metrics, err := training.Train(cfg, pctx.Train, pctx.Val, pctx.Test)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	pctx.Network = net
	pctx.Metrics = metrics

	log.Printf("[%s] training done: train_loss=%.6f val_loss=%.6f test_loss=%.6f epochs=%d",
		symbol, metrics.TrainLoss, metrics.ValLoss, metrics.TestLoss, metrics.Epochs)
	return nil
}

// runExport encodes the trained network into the interchange artifact,
// validates the export against the live network and publishes it
func (r *Runner) runExport(pctx *Context) error {
	symbol := pctx.Pair.Symbol()

	if pctx.Network == nil || pctx.Scaler == nil {
		return fmt.Errorf("no trained network in context, run %s first", StageTraining)
	}

	cfg := r.trainConf(symbol)
	artifact, err := export.New(symbol, cfg.WindowSize, pctx.Network, pctx.Scaler, export.Metrics{
		TrainLoss: pctx.Metrics.TrainLoss,
		ValLoss:   pctx.Metrics.ValLoss,
		TestLoss:  pctx.Metrics.TestLoss,
		Epochs:    pctx.Metrics.Epochs,
	})
	if err != nil {
		return fmt.Errorf("failed to build artifact: %w", err)
	}

	encoded, err := artifact.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	samples := pctx.Test
	if len(samples) == 0 {
		samples = pctx.Val
	}
	if len(samples) == 0 {
		samples = pctx.Train
	}
	if err := export.Validate(encoded, pctx.Network, samples); err != nil {
		return fmt.Errorf("export validation failed: %w", err)
	}

	scalerJSON, err := preprocess.MarshalScaler(pctx.Scaler)
	if err != nil {
		return fmt.Errorf("failed to encode scaler: %w", err)
	}

	if r.store == nil {
		return fmt.Errorf("model store not configured")
	}

	date := time.Now().UTC().Format("2006-01-02")
	if err := r.store.Upload(date, symbol, encoded, scalerJSON); err != nil {
		return fmt.Errorf("failed to publish artifact: %w", err)
	}

	version := models.ModelVersion{
		PairID:      pctx.Pair.ID,
		Date:        date,
		ObjectKey:   modelstore.ModelKey(date, symbol),
		ScalerKey:   modelstore.ScalerKey(date, symbol),
		Checksum:    artifact.Checksum,
		WindowSize:  artifact.WindowSize,
		NumFeatures: artifact.Network.InputSize,
		HiddenSize:  artifact.Network.HiddenSize,
		PublishedAt: time.Now().UTC(),
	}
	if err := r.db.Create(&version).Error; err != nil {
		log.Printf("Warning: failed to record model version for %s: %v", symbol, err)
	}

	log.Printf("[%s] artifact published under %s/", symbol, date)
	return nil
}

// CandlesToBars converts stored candles into fetcher bars for preprocessing
func CandlesToBars(candles []models.Candle) []marketdata.Bar {
	bars := make([]marketdata.Bar, len(candles))
	for i, candle := range candles {
		open, _ := candle.Open.Float64()
		high, _ := candle.High.Float64()
		low, _ := candle.Low.Float64()
		closePrice, _ := candle.Close.Float64()
		volumeFrom, _ := candle.VolumeFrom.Float64()
		volumeTo, _ := candle.VolumeTo.Float64()

		bars[i] = marketdata.Bar{
			Time:       candle.Time,
			Open:       open,
			High:       high,
			Low:        low,
			Close:      closePrice,
			VolumeFrom: volumeFrom,
			VolumeTo:   volumeTo,
		}
	}
	return bars
}
