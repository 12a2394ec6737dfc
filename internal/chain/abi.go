package chain

// Hand-maintained ABI fragments for the escrow contract and ERC-20. Only the
// functions this client touches are listed.

const erc20ABIJSON = `[
  {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const escrowABIJSON = `[
  {"name":"signalIntent","type":"function","stateMutability":"nonpayable","inputs":[
    {"name":"depositId","type":"uint256"},
    {"name":"amount","type":"uint256"},
    {"name":"to","type":"address"},
    {"name":"verifier","type":"address"},
    {"name":"fiatCurrency","type":"bytes32"},
    {"name":"gatingServiceSignature","type":"bytes"}],"outputs":[]},
  {"name":"cancelIntent","type":"function","stateMutability":"nonpayable","inputs":[
    {"name":"intentHash","type":"bytes32"}],"outputs":[]},
  {"name":"withdrawDeposit","type":"function","stateMutability":"nonpayable","inputs":[
    {"name":"depositId","type":"uint256"}],"outputs":[]},
  {"name":"updateDepositConversionRate","type":"function","stateMutability":"nonpayable","inputs":[
    {"name":"depositId","type":"uint256"},
    {"name":"verifier","type":"address"},
    {"name":"fiatCurrency","type":"bytes32"},
    {"name":"newConversionRate","type":"uint256"}],"outputs":[]},
  {"name":"createDeposit","type":"function","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"intentAmountRange","type":"tuple","components":[
      {"name":"min","type":"uint256"},
      {"name":"max","type":"uint256"}]},
    {"name":"verifiers","type":"address[]"},
    {"name":"verifierData","type":"tuple[]","components":[
      {"name":"intentGatingService","type":"address"},
      {"name":"payeeDetails","type":"string"},
      {"name":"data","type":"bytes"}]},
    {"name":"currencies","type":"tuple[][]","components":[
      {"name":"code","type":"bytes32"},
      {"name":"conversionRate","type":"uint256"}]}],"outputs":[]},
  {"name":"getDepositFromIds","type":"function","stateMutability":"view","inputs":[
    {"name":"depositIds","type":"uint256[]"}],"outputs":[
    {"name":"depositArray","type":"tuple[]","components":[
      {"name":"depositId","type":"uint256"},
      {"name":"deposit","type":"tuple","components":[
        {"name":"depositor","type":"address"},
        {"name":"token","type":"address"},
        {"name":"amount","type":"uint256"},
        {"name":"intentAmountRange","type":"tuple","components":[
          {"name":"min","type":"uint256"},
          {"name":"max","type":"uint256"}]},
        {"name":"acceptingIntents","type":"bool"},
        {"name":"remainingDeposits","type":"uint256"},
        {"name":"outstandingIntentAmount","type":"uint256"},
        {"name":"intentHashes","type":"bytes32[]"}]},
      {"name":"availableLiquidity","type":"uint256"},
      {"name":"verifiers","type":"tuple[]","components":[
        {"name":"verifier","type":"address"},
        {"name":"verificationData","type":"tuple","components":[
          {"name":"intentGatingService","type":"address"},
          {"name":"payeeDetails","type":"string"},
          {"name":"data","type":"bytes"}]},
        {"name":"currencies","type":"tuple[]","components":[
          {"name":"code","type":"bytes32"},
          {"name":"conversionRate","type":"uint256"}]}]}]}]},
  {"name":"getAccountIntent","type":"function","stateMutability":"view","inputs":[
    {"name":"account","type":"address"}],"outputs":[
    {"name":"intentView","type":"tuple","components":[
      {"name":"intentHash","type":"bytes32"},
      {"name":"intent","type":"tuple","components":[
        {"name":"owner","type":"address"},
        {"name":"to","type":"address"},
        {"name":"depositId","type":"uint256"},
        {"name":"amount","type":"uint256"},
        {"name":"timestamp","type":"uint256"},
        {"name":"paymentVerifier","type":"address"},
        {"name":"fiatCurrency","type":"bytes32"},
        {"name":"conversionRate","type":"uint256"}]},
      {"name":"deposit","type":"tuple","components":[
        {"name":"depositId","type":"uint256"},
        {"name":"deposit","type":"tuple","components":[
          {"name":"depositor","type":"address"},
          {"name":"token","type":"address"},
          {"name":"amount","type":"uint256"},
          {"name":"intentAmountRange","type":"tuple","components":[
            {"name":"min","type":"uint256"},
            {"name":"max","type":"uint256"}]},
          {"name":"acceptingIntents","type":"bool"},
          {"name":"remainingDeposits","type":"uint256"},
          {"name":"outstandingIntentAmount","type":"uint256"},
          {"name":"intentHashes","type":"bytes32[]"}]},
        {"name":"availableLiquidity","type":"uint256"},
        {"name":"verifiers","type":"tuple[]","components":[
          {"name":"verifier","type":"address"},
          {"name":"verificationData","type":"tuple","components":[
            {"name":"intentGatingService","type":"address"},
            {"name":"payeeDetails","type":"string"},
            {"name":"data","type":"bytes"}]},
          {"name":"currencies","type":"tuple[]","components":[
            {"name":"code","type":"bytes32"},
            {"name":"conversionRate","type":"uint256"}]}]}]}]}]}
]`
