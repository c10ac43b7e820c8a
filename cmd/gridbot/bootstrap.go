package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fleetManifest is the bots.yaml shape consumed once by
// create-bot -from-file to batch-create BotInstances.
type fleetManifest struct {
	Bots []fleetBotEntry `yaml:"bots"`
}

type fleetBotEntry struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Token         string `yaml:"token"`
	Symbol        string `yaml:"symbol"`
	Wallet        string `yaml:"wallet"`
	Positions     int    `yaml:"positions"`
	Floor         string `yaml:"floor"`
	Ceiling       string `yaml:"ceiling"`
	TakeProfitPct string `yaml:"takeProfitPct"`
	MinProfitPct  string `yaml:"minProfitPct"`
	HeartbeatMs   int64  `yaml:"heartbeatMs"`
	BuyAmountWei  string `yaml:"buyAmountWei"`
}

// loadFleetManifest reads and parses a bots.yaml file into gridBotSpecs.
// id may be omitted per entry — newGridBot assigns a uuid in that case.
func loadFleetManifest(path string) ([]gridBotSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest fleetManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(manifest.Bots) == 0 {
		return nil, fmt.Errorf("manifest has no bots")
	}

	specs := make([]gridBotSpec, 0, len(manifest.Bots))
	for _, b := range manifest.Bots {
		floor, ceiling := b.Floor, b.Ceiling
		if floor == "" {
			floor = "0"
		}
		if ceiling == "" {
			ceiling = "0"
		}
		takeProfit, minProfit := b.TakeProfitPct, b.MinProfitPct
		if takeProfit == "" {
			takeProfit = "10"
		}
		if minProfit == "" {
			minProfit = "1"
		}
		buyAmountWei := b.BuyAmountWei
		if buyAmountWei == "" {
			buyAmountWei = "0"
		}

		specs = append(specs, gridBotSpec{
			ID: b.ID, Name: b.Name, Token: b.Token, Symbol: b.Symbol, Wallet: b.Wallet,
			NumPositions: b.Positions, Floor: floor, Ceiling: ceiling,
			TakeProfitPct: takeProfit, MinProfitPct: minProfit,
			HeartbeatMs: b.HeartbeatMs, BuyAmountWei: buyAmountWei,
		})
	}
	return specs, nil
}
