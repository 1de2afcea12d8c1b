package subgraph

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"poolstats/pkg/models"
)

// BaseAssetSymbol is the asset whose pools are priced from the token1 side.
const BaseAssetSymbol = "WETH"

// Normalize maps one raw subgraph item to a Record.
//
// When token0 is the base asset the reference price is the token1 price,
// otherwise it is the token0 price.
func Normalize(source models.Source, schema Schema, item gjson.Result) (models.Record, error) {
	token0, err := symbolField(item, "token0.symbol")
	if err != nil {
		return models.Record{}, err
	}
	token1, err := symbolField(item, "token1.symbol")
	if err != nil {
		return models.Record{}, err
	}

	txCount, err := numericField(item, schema.TxCountField)
	if err != nil {
		return models.Record{}, err
	}
	volume, err := numericField(item, "volumeUSD")
	if err != nil {
		return models.Record{}, err
	}

	priceField := "token0Price"
	if token0 == BaseAssetSymbol {
		priceField = "token1Price"
	}
	price, err := numericField(item, priceField)
	if err != nil {
		return models.Record{}, err
	}

	volumeUSD, _ := volume.Float64()
	referencePrice, _ := price.Float64()

	return models.Record{
		Source:         source,
		PoolID:         poolID(item.Get("id").String()),
		Token0Symbol:   token0,
		Token1Symbol:   token1,
		TxCount:        txCount.IntPart(),
		VolumeUSD:      volumeUSD,
		ReferencePrice: referencePrice,
	}, nil
}

func symbolField(item gjson.Result, field string) (string, error) {
	v := item.Get(field)
	if !v.Exists() {
		return "", fmt.Errorf("missing field %q", field)
	}
	if v.Type != gjson.String {
		return "", fmt.Errorf("field %q is not a string: %s", field, v.Raw)
	}
	return v.String(), nil
}

// numericField reads a field that subgraphs serialize either as a JSON string or a number.
func numericField(item gjson.Result, field string) (decimal.Decimal, error) {
	v := item.Get(field)
	if !v.Exists() {
		return decimal.Zero, fmt.Errorf("missing field %q", field)
	}
	if v.Type != gjson.String && v.Type != gjson.Number {
		return decimal.Zero, fmt.Errorf("field %q is not numeric: %s", field, v.Raw)
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing field %q: %w", field, err)
	}
	return d, nil
}

// poolID checksums hex addresses and passes anything else through untouched.
func poolID(id string) string {
	if common.IsHexAddress(id) {
		return common.HexToAddress(id).Hex()
	}
	return id
}
