// reader.go
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"

	"github.com/fracabu/logistic-data-dash/src/processor"
)

// ReadShipments loads a raw shipment table from disk, dispatching on the
// file extension. CSV files ignore sheetName; spreadsheets read the named
// sheet, or the first one when sheetName is empty.
func ReadShipments(filePath, sheetName string) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		return ReadCSV(filePath)
	case ".xlsx", ".xls":
		return ReadXLSX(filePath, sheetName)
	default:
		return dataframe.DataFrame{}, &processor.LoadError{
			Source: filePath,
			Err:    fmt.Errorf("unsupported file extension %q", filepath.Ext(filePath)),
		}
	}
}

// ReadCSV reads every column as string; type coercion is the
// normalization step's job, not the reader's.
func ReadCSV(filePath string) (dataframe.DataFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.DataFrame{}, &processor.LoadError{Source: filePath, Err: err}
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.DefaultType(series.String), dataframe.DetectTypes(false))
	if df.Error() != nil {
		return dataframe.DataFrame{}, &processor.LoadError{Source: filePath, Err: df.Error()}
	}
	return df, nil
}

func ReadXLSX(filePath, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.DataFrame{}, &processor.LoadError{Source: filePath, Err: err}
	}
	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, &processor.LoadError{Source: filePath, Err: fmt.Errorf("workbook has no sheets")}
	}

	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		named, ok := xlFile.Sheet[sheetName]
		if !ok {
			return dataframe.DataFrame{}, &processor.LoadError{
				Source: filePath,
				Err:    fmt.Errorf("sheet %q not found", sheetName),
			}
		}
		sheet = named
	}

	return convertSheetToDataFrame(sheet), nil
}

// convertSheetToDataFrame treats the first row as the header row and keeps
// every cell a string.
func convertSheetToDataFrame(sheet *xlsx.Sheet) dataframe.DataFrame {
	if len(sheet.Rows) == 0 {
		return dataframe.New()
	}

	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, cell.Value)
	}

	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(sheet.Rows)-1)
	}

	for _, row := range sheet.Rows[1:] {
		for i := range headers {
			value := ""
			if i < len(row.Cells) {
				value = row.Cells[i].Value
			}
			columns[i] = append(columns[i], value)
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, colName)
	}

	return dataframe.New(seriesList...)
}

// ResolveDataFile returns the newest shipment file in dir, falling back to
// defaultFile when the directory holds nothing loadable.
func ResolveDataFile(dir, defaultFile string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if defaultFile != "" {
			return defaultFile, nil
		}
		return "", &processor.LoadError{Source: dir, Err: err}
	}

	var newest string
	var newestMod int64
	for _, entry := range entries {
		if entry.IsDir() || !isShipmentFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().Unix() > newestMod {
			newest = filepath.Join(dir, entry.Name())
			newestMod = info.ModTime().Unix()
		}
	}

	if newest == "" {
		if defaultFile != "" {
			return defaultFile, nil
		}
		return "", &processor.LoadError{Source: dir, Err: fmt.Errorf("no shipment files found")}
	}
	return newest, nil
}

func isShipmentFile(name string) bool {
	if strings.HasPrefix(name, "~$") { // office lock files
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xls":
		return true
	}
	return false
}
