package main

// Simulated inputs used when no files are given. The bank withdrawal is 30.00
// short of the invoice total, which makes the retry loop do real work.
const sampleInvoice = `
INVOICE #9921
Vendor: TechSolutions Inc
Date: 2025-11-19
Subtotal: $1000.00
Tax: $180.00
Total: $1180.00
`

const sampleBankStatement = `
DATE,DESC,AMOUNT
2025-11-18,Coffee Shop,-5.00
2025-11-19,TechSolutions Inc,-1150.00
2025-11-20,Office Supplies,-50.00
`
