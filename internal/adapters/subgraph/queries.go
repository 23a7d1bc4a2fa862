package subgraph

const userReservesQuery = `
query GetUserReserves($first: Int!, $skip: Int!) {
  userReserves(
    first: $first
    skip: $skip
    orderBy: id
    where: {
      or: [
        { currentATokenBalance_gt: "0" }
        { currentVariableDebt_gt: "0" }
        { currentStableDebt_gt: "0" }
      ]
    }
  ) {
    id
    user { id }
    reserve {
      symbol
      underlyingAsset
      decimals
      baseLTVasCollateral
      reserveLiquidationThreshold
      reserveLiquidationBonus
      usageAsCollateralEnabled
      price { priceInUsd }
    }
    currentATokenBalance
    currentVariableDebt
    currentStableDebt
    usageAsCollateralEnabledOnUser
  }
}`

const reserveConfigsQuery = `
query GetReservesConfig {
  reserves(first: 1000) {
    symbol
    underlyingAsset
    decimals
    baseLTVasCollateral
    reserveLiquidationThreshold
    reserveLiquidationBonus
    usageAsCollateralEnabled
    price { priceInUsd }
  }
}`

const reserveStateQuery = `
query GetReserves($addresses: [String!]) {
  reserves(where: { underlyingAsset_in: $addresses }) {
    symbol
    underlyingAsset
    decimals
    totalLiquidity
    availableLiquidity
    totalCurrentVariableDebt
    totalPrincipalStableDebt
    borrowCap
    supplyCap
    price { priceInUsd }
    optimalUtilisationRate
    baseVariableBorrowRate
    variableRateSlope1
    variableRateSlope2
    lastUpdateTimestamp
  }
}`
