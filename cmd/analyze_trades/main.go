// Command analyze_trades summarizes a trade log produced by the engine's
// file sink. It reads data/trades.jsonl (or the file given as the first
// argument) and prints per-symbol and per-source performance.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"paper-trading-bot/internal/risk"
)

type symbolStats struct {
	Symbol        string
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalPnL      float64
	TotalWins     float64
	TotalLosses   float64
	WinRate       float64
	AvgPnL        float64
	Fees          float64
}

func main() {
	path := "data/trades.jsonl"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	trades, err := readTrades(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", path, err)
		os.Exit(1)
	}
	if len(trades) == 0 {
		fmt.Println("no trades recorded")
		return
	}

	bySymbol := make(map[string]*symbolStats)
	bySource := make(map[string]*symbolStats)
	byExit := make(map[risk.ExitReason]int)

	for _, t := range trades {
		accumulate(bySymbol, t.Symbol, t)
		accumulate(bySource, t.Source, t)
		byExit[t.ExitReason]++
	}

	fmt.Println("TRADE PERFORMANCE BY SYMBOL")
	printTable(sorted(bySymbol))

	fmt.Println("\nTRADE PERFORMANCE BY SOURCE")
	printTable(sorted(bySource))

	fmt.Println("\nEXIT REASONS")
	for _, reason := range []risk.ExitReason{risk.ExitStopLoss, risk.ExitTakeProfit, risk.ExitManual, risk.ExitError} {
		if n := byExit[reason]; n > 0 {
			fmt.Printf("  %-12s %5d (%.1f%%)\n", reason, n, float64(n)/float64(len(trades))*100)
		}
	}

	var totalPnL, totalFees float64
	var wins int
	for _, t := range trades {
		totalPnL += t.RealizedPnL
		totalFees += t.FeesPaid
		if t.RealizedPnL > 0 {
			wins++
		}
	}
	fmt.Printf("\nTotal trades: %d | Win rate: %.1f%% | Net PnL: %+.4f | Fees paid: %.4f\n",
		len(trades), float64(wins)/float64(len(trades))*100, totalPnL, totalFees)
}

func readTrades(path string) ([]risk.Trade, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var trades []risk.Trade
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var t risk.Trade
		if err := json.Unmarshal(scanner.Bytes(), &t); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		trades = append(trades, t)
	}
	return trades, scanner.Err()
}

func accumulate(m map[string]*symbolStats, key string, t risk.Trade) {
	s, ok := m[key]
	if !ok {
		s = &symbolStats{Symbol: key}
		m[key] = s
	}
	s.TotalTrades++
	s.TotalPnL += t.RealizedPnL
	s.Fees += t.FeesPaid
	if t.RealizedPnL > 0 {
		s.WinningTrades++
		s.TotalWins += t.RealizedPnL
	} else if t.RealizedPnL < 0 {
		s.LosingTrades++
		s.TotalLosses += t.RealizedPnL
	}
}

func sorted(m map[string]*symbolStats) []*symbolStats {
	var out []*symbolStats
	for _, s := range m {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
		s.AvgPnL = s.TotalPnL / float64(s.TotalTrades)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TotalPnL > out[j].TotalPnL
	})
	return out
}

func printTable(stats []*symbolStats) {
	fmt.Println("  Symbol/Source     Trades  Winners  Losers    Total PnL      Avg PnL  Win Rate")
	for _, s := range stats {
		fmt.Printf("  %-16s %7d %8d %7d %+12.4f %+12.4f   %6.1f%%\n",
			s.Symbol, s.TotalTrades, s.WinningTrades, s.LosingTrades,
			s.TotalPnL, s.AvgPnL, s.WinRate)
	}
}
