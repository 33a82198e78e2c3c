package scanner

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sbr_monitor/logger"
	"sbr_monitor/models"
)

// samplesPerDay is how often each point is sampled in generated data
const samplesPerDay = 3

// GenerateSampleFiles writes one CSV per sampling point with days of
// synthetic readings ending at end. Rows carry no id, so importing the same
// files twice does not duplicate records. Returns the written paths.
func GenerateSampleFiles(outputDir string, days int, end time.Time, seed int64) ([]string, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	paths := make([]string, len(models.SamplingPoints))
	errs := make([]error, len(models.SamplingPoints))

	var wg sync.WaitGroup
	for i, point := range models.SamplingPoints {
		wg.Add(1)
		go func(i int, point models.SamplingPoint) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed + int64(i)))
			path := filepath.Join(outputDir, sampleFileName(point))
			data := generatePointData(rng, point, days, end)
			if err := writeCSVFile(path, data); err != nil {
				errs[i] = fmt.Errorf("failed to write %s: %w", path, err)
				return
			}
			paths[i] = path
			logger.Printf("Generated %s with %d records\n", filepath.Base(path), len(data))
		}(i, point)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func sampleFileName(point models.SamplingPoint) string {
	name := strings.ToLower(string(point))
	name = strings.NewReplacer(" ", "_", "ś", "s", "ń", "n", "ó", "o", "ą", "a", "ę", "e", "ł", "l").Replace(name)
	return name + ".csv"
}

func writeCSVFile(path string, data []models.Measurement) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func generatePointData(rng *rand.Rand, point models.SamplingPoint, days int, end time.Time) []models.Measurement {
	var data []models.Measurement
	start := end.UTC().Truncate(24*time.Hour).AddDate(0, 0, -days)
	round := func(v float64, places int) *float64 {
		p := math.Pow(10, float64(places))
		r := math.Round(v*p) / p
		return &r
	}

	for day := 0; day < days; day++ {
		for i := 0; i < samplesPerDay; i++ {
			ts := start.AddDate(0, 0, day).Add(time.Duration(7+i*4) * time.Hour)

			// seasonal temperature cycle
			dayAngle := float64(ts.YearDay()) * 2 * math.Pi / 365
			temp := 15 + 6*math.Sin(dayAngle-math.Pi/2) + rng.Float64()*2 - 1

			r := models.Readings{
				PH:          round(7.2+rng.NormFloat64()*0.45, 2),
				Temperature: round(temp, 1),
				COD:         round(40+rng.Float64()*60, 0),
			}
			switch {
			case point.IsSBR():
				r.Ammonium = round(math.Abs(1.5+rng.NormFloat64()*1.8), 2)
				r.Nitrate = round(4+rng.Float64()*8, 2)
				r.MLSS = round(2800+rng.Float64()*1400, 0)
			case point == models.PointEqualization:
				r.Ammonium = round(25+rng.Float64()*20, 1)
				r.TotalNitrogen = round(40+rng.Float64()*20, 1)
				r.TotalPhosphorus = round(5+rng.Float64()*4, 2)
				r.Alkalinity = round(250+rng.Float64()*100, 0)
				r.COD = round(600+rng.Float64()*400, 0)
			default:
				r.TotalPhosphorus = round(0.5+rng.Float64()*1.5, 2)
			}

			data = append(data, models.Measurement{
				Timestamp: ts.UnixMilli(),
				Point:     point,
				Readings:  r,
			})
		}
	}

	return data
}
