package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-pdf/fpdf"
)

func buildDirectoryCSV(mosques []Mosque) (string, error) {
	buffer := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buffer)
	headers := []string{"id", "name", "address", "city", "state", "latitude", "longitude", "sweet_type", "views", "upvotes", "approved_at", "sessions"}
	if err := writer.Write(headers); err != nil {
		return "", err
	}
	for _, mosque := range mosques {
		sessions := ""
		for i, session := range mosque.Sessions {
			if i > 0 {
				sessions += "|"
			}
			sessions += session.EndDate
		}
		row := []string{
			mosque.ID,
			mosque.Name,
			mosque.Address,
			mosque.City,
			mosque.State,
			fmt.Sprintf("%f", mosque.Latitude),
			fmt.Sprintf("%f", mosque.Longitude),
			mosque.SweetType,
			strconv.Itoa(mosque.Views),
			strconv.Itoa(mosque.Upvotes),
			mosque.ApprovedAt,
			sessions,
		}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

func buildDirectoryPDF(mosques []Mosque, generatedOn string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 16)
	pdf.Cell(0, 10, "Taraweeh Finder Directory")

	pdf.Ln(12)

	totalViews := 0
	totalUpvotes := 0
	cityCounts := map[string]int{}
	for _, mosque := range mosques {
		totalViews += mosque.Views
		totalUpvotes += mosque.Upvotes
		cityCounts[mosque.City]++
	}

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Generated: %s", generatedOn))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Approved mosques: %d", len(mosques)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Total views: %d, total upvotes: %d", totalViews, totalUpvotes))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Listings by city")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	cities := make([]string, 0, len(cityCounts))
	for city := range cityCounts {
		cities = append(cities, city)
	}
	sort.Slice(cities, func(i, j int) bool { return cityCounts[cities[i]] > cityCounts[cities[j]] })
	for _, city := range cities {
		pdf.Cell(0, 6, fmt.Sprintf("- %s: %d", city, cityCounts[city]))
		pdf.Ln(6)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Most viewed")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	ranked := append([]Mosque{}, mosques...)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Views > ranked[j].Views })
	limit := len(ranked)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		pdf.Cell(0, 6, fmt.Sprintf("- %s (%s): %d views, %d upvotes", ranked[i].Name, ranked[i].City, ranked[i].Views, ranked[i].Upvotes))
		pdf.Ln(6)
	}

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
